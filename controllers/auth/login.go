package auth

import (
	"fmt"
	"math"
	"net/http"

	"appdownloader/controllers"
	"appdownloader/database"
	"appdownloader/middleware"
	"appdownloader/services"
	"appdownloader/utils"
)

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req services.Credentials
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	// check lockout for this client and username
	lockout := middleware.GetLoginLockout()
	ip := middleware.ClientIP(r)
	if locked, retry := lockout.Locked(r.Context(), ip, req.Username); locked {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retry.Seconds()))))
		utils.WriteError(w, r, &utils.AppError{Kind: utils.KindRateLimited, Message: "Too many login attempts, try again later."})
		return
	}

	sess, err := services.Login(r.Context(), database.DB, req)
	if err != nil {
		if utils.KindOf(err) == utils.KindInvalidCredentials {
			lockout.Fail(r.Context(), ip, req.Username)
			utils.RequestLogger(r).WithField("username", req.Username).WithField("ip", ip).Info("login failed")
		}
		utils.WriteError(w, r, err)
		return
	}

	// on successful login reset failed login counter
	lockout.Reset(r.Context(), ip, req.Username)
	utils.WriteJSON(w, http.StatusOK, SessionResponse{Token: sess.Token, User: controllers.NewUserView(sess.User)})
}
