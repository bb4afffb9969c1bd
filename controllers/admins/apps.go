package admins

import (
	"net/http"

	"appdownloader/database"
	"appdownloader/middleware"
	"appdownloader/services"
	"appdownloader/utils"
)

// AddAndroidAppHandler creates a catalog entry. Staff only; the route enforces it.
func AddAndroidAppHandler(w http.ResponseWriter, r *http.Request) {
	var req services.AddAppInput
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, r, err)
		return
	}
	app, err := services.AddApp(r.Context(), database.DB, req)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, app)
}
