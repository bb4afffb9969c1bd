package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"appdownloader/database"
	"appdownloader/models"
	"appdownloader/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetOrCreateProfile returns the user's profile, creating an empty one if it is missing. Every
// flow uses this, so a signed-up user never sees a missing profile.
func GetOrCreateProfile(ctx context.Context, db *gorm.DB, userID uint) (*models.UserProfile, error) {
	var profile *models.UserProfile
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		profile, err = lockProfile(tx, userID)
		if err != nil {
			return err
		}
		return tx.Preload("User").First(profile, profile.ID).Error
	})
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("profile: %w", err))
	}
	return profile, nil
}

// lockProfile loads the profile row FOR UPDATE inside tx, inserting it first if needed.
func lockProfile(tx *gorm.DB, userID uint) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !database.IsNotFound(err) {
		return nil, err
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.UserProfile{UserID: userID}).Error; err != nil {
		return nil, err
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

type DownloadResult struct {
	App     models.AndroidApp
	Task    models.Task
	Profile models.UserProfile
}

// DownloadApp records that userID downloaded appID and credits app.Points to the profile.
// The existence check, task insert and credit run in one transaction with the profile row locked;
// the unique (user_id, app_id) index turns any remaining race into a Conflict.
func DownloadApp(ctx context.Context, db *gorm.DB, userID, appID uint) (*DownloadResult, error) {
	if appID == 0 {
		return nil, utils.NewValidationError("app_id is required", map[string]string{"app_id": "This field is required."})
	}
	db = db.WithContext(ctx)

	var app models.AndroidApp
	if err := db.First(&app, appID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, utils.NewNotFound("App not found")
		}
		return nil, utils.Internal(fmt.Errorf("load app: %w", err))
	}

	res := &DownloadResult{App: app}
	err := db.Transaction(func(tx *gorm.DB) error {
		profile, err := lockProfile(tx, userID)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.Task{}).Where("user_id = ? AND app_id = ?", userID, app.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return utils.NewConflict("You have already downloaded this app")
		}

		task := models.Task{UserID: userID, AppID: app.ID, Completed: false}
		if err := tx.Create(&task).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return utils.NewConflict("You have already downloaded this app")
			}
			return err
		}

		if err := tx.Model(&models.UserProfile{}).Where("id = ?", profile.ID).
			Update("points_earned", gorm.Expr("points_earned + ?", app.Points)).Error; err != nil {
			return err
		}
		if err := tx.Preload("User").First(profile, profile.ID).Error; err != nil {
			return err
		}
		res.Task = task
		res.Profile = *profile
		return nil
	})
	if err != nil {
		if utils.KindOf(err) != utils.KindInternal {
			return nil, err
		}
		return nil, utils.Internal(fmt.Errorf("download app %d: %w", app.ID, err))
	}

	utils.DownloadsTotal.Inc()
	utils.PointsAwardedTotal.Add(float64(app.Points))
	utils.Log.WithFields(map[string]interface{}{"user_id": userID, "app_id": app.ID, "points": app.Points}).Info("app downloaded")
	return res, nil
}

// Screenshot is an uploaded proof-of-download image.
type Screenshot struct {
	Body        io.Reader
	Size        int64
	Filename    string
	ContentType string
}

type ScreenshotResult struct {
	Task    models.Task
	Profile models.UserProfile
	// Completed is true when this upload moved the task from pending to completed.
	Completed bool
}

// ScreenshotKey names the object a screenshot is stored under.
func ScreenshotKey(userID, taskID uint, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("screenshots/%d_%d_%s%s", userID, taskID, uuid.NewString(), ext)
}

// FindUserTask loads one of userID's tasks. Tasks of other users are NotFound like missing ones.
func FindUserTask(ctx context.Context, db *gorm.DB, userID, taskID uint) (*models.Task, error) {
	var task models.Task
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", taskID, userID).First(&task).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, utils.NewNotFound("Task not found")
		}
		return nil, utils.Internal(fmt.Errorf("load task: %w", err))
	}
	return &task, nil
}

// UploadScreenshot attaches shot to the caller's task. A pending task becomes completed and
// tasksCompleted grows by one; an already completed task only gets the new screenshot.
func UploadScreenshot(ctx context.Context, db *gorm.DB, store utils.BlobStore, userID, taskID uint, shot Screenshot) (*ScreenshotResult, error) {
	task, err := FindUserTask(ctx, db, userID, taskID)
	if err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	key := ScreenshotKey(userID, task.ID, shot.Filename)
	if err := store.Put(ctx, key, shot.Body, shot.Size, shot.ContentType); err != nil {
		return nil, utils.Internal(fmt.Errorf("store screenshot: %w", err))
	}

	res := &ScreenshotResult{}
	var previous *string
	err = db.Transaction(func(tx *gorm.DB) error {
		var locked models.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", task.ID, userID).First(&locked).Error; err != nil {
			return err
		}
		previous = locked.Screenshot
		wasPending := !locked.Completed

		if err := tx.Model(&locked).Updates(map[string]interface{}{
			"screenshot": key,
			"completed":  true,
		}).Error; err != nil {
			return err
		}

		profile, err := lockProfile(tx, userID)
		if err != nil {
			return err
		}
		if wasPending {
			if err := tx.Model(&models.UserProfile{}).Where("id = ?", profile.ID).
				Update("tasks_completed", gorm.Expr("tasks_completed + ?", 1)).Error; err != nil {
				return err
			}
		}
		if err := tx.Preload("User").First(profile, profile.ID).Error; err != nil {
			return err
		}
		if err := tx.First(&locked, locked.ID).Error; err != nil {
			return err
		}
		res.Task = locked
		res.Profile = *profile
		res.Completed = wasPending
		return nil
	})
	if err != nil {
		if delErr := store.Delete(ctx, key); delErr != nil {
			utils.Log.WithError(delErr).WithField("key", key).Warn("orphaned screenshot")
		}
		if database.IsNotFound(err) {
			return nil, utils.NewNotFound("Task not found")
		}
		return nil, utils.Internal(fmt.Errorf("complete task %d: %w", task.ID, err))
	}

	if previous != nil && *previous != "" && *previous != key {
		if err := store.Delete(ctx, *previous); err != nil {
			utils.Log.WithError(err).WithField("key", *previous).Warn("could not delete replaced screenshot")
		}
	}
	if res.Completed {
		utils.TasksCompletedTotal.Inc()
	}
	utils.Log.WithFields(map[string]interface{}{"user_id": userID, "task_id": task.ID, "completed_now": res.Completed}).Info("screenshot uploaded")
	return res, nil
}

// ListTasks returns the user's tasks in id order together with the (lazily created) profile.
func ListTasks(ctx context.Context, db *gorm.DB, userID uint) ([]models.Task, *models.UserProfile, error) {
	tasks := make([]models.Task, 0)
	if err := db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, nil, utils.Internal(fmt.Errorf("list tasks: %w", err))
	}
	profile, err := GetOrCreateProfile(ctx, db, userID)
	if err != nil {
		return nil, nil, err
	}
	return tasks, profile, nil
}
