package routes

import (
	"net/http"

	"appdownloader/controllers/admins"
	"appdownloader/docs"
	"appdownloader/middleware"
)

// AdminRoutes require a staff token.
func AdminRoutes() []Route {
	return []Route{
		{
			Method: http.MethodPost, Path: "/add_android_app/", Access: middleware.Admin, Limit: limitUser,
			Handler: admins.AddAndroidAppHandler,
			Doc: docs.Operation{
				Summary: "Add an app to the catalog", Tag: "admin",
				Body: docs.Ref("AddAndroidApp"),
				Responses: map[int]docs.Response{
					http.StatusCreated:    {Description: "App created", Schema: docs.Ref("AndroidApp")},
					http.StatusBadRequest: errResp("Missing field, negative points, or unknown category/subcategory"),
				},
			},
		},
	}
}
