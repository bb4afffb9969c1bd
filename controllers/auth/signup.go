package auth

import (
	"net/http"

	"appdownloader/controllers"
	"appdownloader/database"
	"appdownloader/middleware"
	"appdownloader/services"
	"appdownloader/utils"
)

type SessionResponse struct {
	Token string               `json:"token"`
	User  controllers.UserView `json:"user"`
}

// SignupHandler creates an account and answers 201 with its token.
func SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req services.Credentials
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	sess, err := services.Signup(r.Context(), database.DB, req)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, SessionResponse{Token: sess.Token, User: controllers.NewUserView(sess.User)})
}
