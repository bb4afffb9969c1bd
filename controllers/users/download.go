package users

import (
	"net/http"

	"appdownloader/controllers"
	"appdownloader/database"
	"appdownloader/middleware"
	"appdownloader/services"
	"appdownloader/utils"
)

type DownloadRequest struct {
	AppID utils.FlexID `json:"app_id"`
}

type DownloadResponse struct {
	Message      string                  `json:"message"`
	PointsEarned int64                   `json:"points_earned"`
	TotalPoints  int64                   `json:"total_points"`
	UserProfile  controllers.ProfileView `json:"user_profile"`
}

// DownloadAppHandler records a download and credits the app's points. A second download of
// the same app is rejected with 409.
func DownloadAppHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == 0 {
		utils.WriteError(w, r, utils.NewUnauthorized("Authentication credentials were not provided."))
		return
	}
	var req DownloadRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	res, err := services.DownloadApp(r.Context(), database.DB, uid, uint(req.AppID))
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, DownloadResponse{
		Message:      "Successfully downloaded " + res.App.Name,
		PointsEarned: res.App.Points,
		TotalPoints:  res.Profile.PointsEarned,
		UserProfile:  controllers.NewProfileView(res.Profile),
	})
}
