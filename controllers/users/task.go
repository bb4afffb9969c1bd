package users

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"appdownloader/controllers"
	"appdownloader/database"
	"appdownloader/services"
	"appdownloader/utils"

	"github.com/gorilla/mux"
)

const maxScreenshotBytes = 10 << 20 // 10MB

var imageExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

// sniffImage returns the content type of an accepted screenshot format.
// http.DetectContentType has no HEIC/HEIF signature, so the ISO-BMFF brand is checked by hand.
func sniffImage(head []byte) (string, bool) {
	detected := http.DetectContentType(head)
	if _, ok := imageExts[detected]; ok {
		return detected, true
	}
	if len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")) {
		switch string(head[8:12]) {
		case "heic", "heix", "hevc", "hevx":
			return "image/heic", true
		case "mif1", "msf1", "heif":
			return "image/heif", true
		}
	}
	return detected, false
}

type UploadScreenshotResponse struct {
	Message     string                  `json:"message"`
	Task        controllers.TaskView    `json:"task"`
	UserProfile controllers.ProfileView `json:"user_profile"`
}

// UploadScreenshotHandler attaches the multipart "screenshot" image to one of the caller's tasks
// and completes it.
func UploadScreenshotHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == 0 {
		utils.WriteError(w, r, utils.NewUnauthorized("Authentication credentials were not provided."))
		return
	}
	taskID, err := strconv.ParseUint(mux.Vars(r)["task_id"], 10, 64)
	if err != nil || taskID == 0 {
		utils.WriteError(w, r, utils.NewNotFound("Task not found"))
		return
	}
	// unknown or foreign tasks are 404 before the upload itself is looked at
	if _, err := services.FindUserTask(r.Context(), database.DB, uid, uint(taskID)); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(maxScreenshotBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.WriteError(w, r, utils.NewValidationError("Screenshot must be at most 10MB", map[string]string{"screenshot": "File too large."}))
			return
		}
		utils.WriteError(w, r, utils.NewValidationError("Invalid form data", map[string]string{"screenshot": "No file was submitted."}))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, handler, err := r.FormFile("screenshot")
	if err != nil {
		utils.WriteError(w, r, utils.NewValidationError("Screenshot is required", map[string]string{"screenshot": "No file was submitted."}))
		return
	}
	defer file.Close()
	if handler.Size > maxScreenshotBytes {
		utils.WriteError(w, r, utils.NewValidationError("Screenshot must be at most 10MB", map[string]string{"screenshot": "File too large."}))
		return
	}
	if handler.Size == 0 {
		utils.WriteError(w, r, utils.NewValidationError("Screenshot is empty", map[string]string{"screenshot": "The submitted file is empty."}))
		return
	}

	// Read first 512 bytes to detect MIME type (magic-bytes)
	buf := make([]byte, 512)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		utils.WriteError(w, r, utils.NewValidationError("Could not read screenshot", map[string]string{"screenshot": "Unreadable file."}))
		return
	}
	contentType, ok := sniffImage(buf[:n])
	if !ok {
		utils.WriteError(w, r, utils.NewValidationError("Screenshot must be an image", map[string]string{
			"screenshot": "Upload a valid image. Supported formats: JPG, PNG, GIF, WEBP, HEIC.",
		}))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		utils.WriteError(w, r, utils.Internal(err))
		return
	}

	filename := handler.Filename
	if ext := strings.ToLower(filepath.Ext(filename)); ext == "" || !knownExt(ext) {
		filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + imageExts[contentType]
	}

	res, err := services.UploadScreenshot(r.Context(), database.DB, utils.Storage, uid, uint(taskID), services.Screenshot{
		Body:        file,
		Size:        handler.Size,
		Filename:    filename,
		ContentType: contentType,
	})
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, UploadScreenshotResponse{
		Message:     "Screenshot uploaded and task completed",
		Task:        controllers.NewTaskView(r.Context(), utils.Storage, res.Task),
		UserProfile: controllers.NewProfileView(res.Profile),
	})
}

func knownExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif":
		return true
	}
	return false
}

type UserTasksResponse struct {
	UserProfile controllers.ProfileView `json:"user_profile"`
	Tasks       []controllers.TaskView  `json:"tasks"`
}

// GetUserTasksHandler lists the caller's tasks together with their profile.
func GetUserTasksHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == 0 {
		utils.WriteError(w, r, utils.NewUnauthorized("Authentication credentials were not provided."))
		return
	}
	tasks, profile, err := services.ListTasks(r.Context(), database.DB, uid)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, UserTasksResponse{
		UserProfile: controllers.NewProfileView(*profile),
		Tasks:       controllers.NewTaskViews(r.Context(), utils.Storage, tasks),
	})
}
