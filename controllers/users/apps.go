package users

import (
	"net/http"

	"appdownloader/database"
	"appdownloader/services"
	"appdownloader/utils"
)

// GetAndroidAppsHandler returns the whole catalog.
func GetAndroidAppsHandler(w http.ResponseWriter, r *http.Request) {
	apps, err := services.ListApps(r.Context(), database.DB)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, apps)
}

// GetCategoriesHandler returns categories with their subcategories.
func GetCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	cats, err := services.ListCategories(r.Context(), database.DB)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, cats)
}
