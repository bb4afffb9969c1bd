package routes

import (
	"net/http"

	"appdownloader/controllers/auth"
	"appdownloader/controllers/users"
	"appdownloader/docs"
	"appdownloader/middleware"
)

func errResp(desc string) docs.Response {
	return docs.Response{Description: desc, Schema: docs.Ref("Error")}
}

// UsersRoutes are the account, catalog and task routes.
func UsersRoutes() []Route {
	return []Route{
		// Signup & Login
		{
			Method: http.MethodPost, Path: "/signup/", Access: middleware.Anonymous, Limit: limitIP,
			Handler: auth.SignupHandler,
			Doc: docs.Operation{
				Summary: "Create an account and return its token", Tag: "auth",
				Body: docs.Ref("Credentials"),
				Responses: map[int]docs.Response{
					http.StatusCreated:    {Description: "Account created", Schema: docs.Ref("Session")},
					http.StatusBadRequest: errResp("Missing or malformed field, or username taken"),
				},
			},
		},
		{
			Method: http.MethodPost, Path: "/login/", Access: middleware.Anonymous, Limit: limitIP,
			Handler: auth.LoginHandler,
			Doc: docs.Operation{
				Summary: "Exchange credentials for the account token", Tag: "auth",
				Body: docs.Ref("Credentials"),
				Responses: map[int]docs.Response{
					http.StatusOK:         {Description: "Authenticated", Schema: docs.Ref("Session")},
					http.StatusBadRequest: errResp("Invalid credentials"),
				},
			},
		},

		// Profile (read)
		{
			Method: http.MethodGet, Path: "/get_user_profile/", Access: middleware.Authenticated, Limit: limitUser,
			Handler: users.GetUserProfileHandler,
			Doc: docs.Operation{
				Summary: "Return the caller's profile", Tag: "profile",
				Responses: map[int]docs.Response{
					http.StatusOK: {Description: "Profile", Schema: docs.Ref("UserProfile")},
				},
			},
		},

		// Catalog (read)
		{
			Method: http.MethodGet, Path: "/get_android_apps/", Access: middleware.Authenticated, Limit: limitUser,
			Handler: users.GetAndroidAppsHandler,
			Doc: docs.Operation{
				Summary: "List every app in the catalog", Tag: "catalog",
				Responses: map[int]docs.Response{
					http.StatusOK: {Description: "Apps ordered by id", Schema: docs.ArrayOf(docs.Ref("AndroidApp"))},
				},
			},
		},
		{
			Method: http.MethodGet, Path: "/get_categories/", Access: middleware.Authenticated, Limit: limitUser,
			Handler: users.GetCategoriesHandler,
			Doc: docs.Operation{
				Summary: "List categories with their subcategories", Tag: "catalog",
				Responses: map[int]docs.Response{
					http.StatusOK: {Description: "Categories", Schema: docs.ArrayOf(docs.Ref("Category"))},
				},
			},
		},

		// Download & tasks (write)
		{
			Method: http.MethodPost, Path: "/download_app/", Access: middleware.Authenticated, Limit: limitUser,
			Handler: users.DownloadAppHandler,
			Doc: docs.Operation{
				Summary: "Record a download and credit the app's points", Tag: "tasks",
				Body: docs.Ref("DownloadRequest"),
				Responses: map[int]docs.Response{
					http.StatusOK:         {Description: "Points credited", Schema: docs.Ref("DownloadResult")},
					http.StatusBadRequest: errResp("app_id missing or not a number"),
					http.StatusNotFound:   errResp("App not found"),
					http.StatusConflict:   errResp("App already downloaded"),
				},
			},
		},
		{
			Method: http.MethodPost, Path: "/upload_screenshot/{task_id:[0-9]+}/", Access: middleware.Authenticated, Limit: limitUser,
			Handler: users.UploadScreenshotHandler,
			Doc: docs.Operation{
				Summary: "Attach a screenshot to a task and complete it", Tag: "tasks",
				FileField: "screenshot",
				Responses: map[int]docs.Response{
					http.StatusOK:         {Description: "Task completed", Schema: docs.Ref("ScreenshotResult")},
					http.StatusBadRequest: errResp("Missing, oversized or non-image screenshot"),
					http.StatusNotFound:   errResp("Task not found"),
				},
			},
		},
		{
			Method: http.MethodGet, Path: "/get_user_tasks/", Access: middleware.Authenticated, Limit: limitUser,
			Handler: users.GetUserTasksHandler,
			Doc: docs.Operation{
				Summary: "List the caller's tasks with their profile", Tag: "tasks",
				Responses: map[int]docs.Response{
					http.StatusOK: {Description: "Tasks and profile", Schema: docs.Ref("UserTasks")},
				},
			},
		},
	}
}
