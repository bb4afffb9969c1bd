package users

import (
	"net/http"

	"appdownloader/controllers"
	"appdownloader/database"
	"appdownloader/services"
	"appdownloader/utils"
)

func GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == 0 {
		utils.WriteError(w, r, utils.NewUnauthorized("Authentication credentials were not provided."))
		return
	}
	profile, err := services.GetOrCreateProfile(r.Context(), database.DB, uid)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, controllers.NewProfileView(*profile))
}
