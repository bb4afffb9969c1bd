package middleware

import (
	"net/http"

	"appdownloader/services"
	"appdownloader/utils"

	"gorm.io/gorm"
)

// Access is the capability a route requires.
type Access int

const (
	Anonymous Access = iota
	Authenticated
	Admin
)

func (a Access) String() string {
	switch a {
	case Authenticated:
		return "authenticated"
	case Admin:
		return "admin"
	default:
		return "anonymous"
	}
}

// Authorize resolves the token key before the handler runs. A missing or unknown token is 401;
// a valid non-staff token on an Admin route is 403 whatever the payload.
func Authorize(access Access, db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if access == Anonymous {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := utils.ExtractTokenKey(r)
			if err != nil {
				utils.WriteError(w, r, utils.NewUnauthorized("Authentication credentials were not provided."))
				return
			}
			user, err := services.Authenticate(r.Context(), db, key)
			if err != nil {
				utils.WriteError(w, r, err)
				return
			}
			if access == Admin && !user.IsStaff {
				utils.RequestLogger(r).WithField("user_id", user.ID).Warn("non-staff user on admin route")
				utils.WriteError(w, r, utils.NewForbidden("You do not have permission to perform this action."))
				return
			}
			next.ServeHTTP(w, r.WithContext(utils.WithUser(r.Context(), user.ID, user.IsStaff)))
		})
	}
}
