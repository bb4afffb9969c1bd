package controllers

import (
	"context"
	"time"

	"appdownloader/models"
	"appdownloader/utils"
)

// UserView is the public part of a user account.
type UserView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
}

func NewUserView(u models.User) UserView {
	return UserView{ID: u.ID, Username: u.Username, IsStaff: u.IsStaff}
}

type ProfileUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

type ProfileView struct {
	ID             uint        `json:"id"`
	User           ProfileUser `json:"user"`
	TasksCompleted int64       `json:"tasksCompleted"`
	PointsEarned   int64       `json:"points_earned"`
}

func NewProfileView(p models.UserProfile) ProfileView {
	v := ProfileView{
		ID:             p.ID,
		User:           ProfileUser{ID: p.UserID},
		TasksCompleted: p.TasksCompleted,
		PointsEarned:   p.PointsEarned,
	}
	if p.User != nil {
		v.User.Username = p.User.Username
	}
	return v
}

type TaskView struct {
	ID         uint      `json:"id"`
	User       uint      `json:"user"`
	App        uint      `json:"app"`
	Completed  bool      `json:"completed"`
	Screenshot *string   `json:"screenshot"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTaskView resolves the screenshot key to a URL through store. A URL that cannot be built is
// logged and left null.
func NewTaskView(ctx context.Context, store utils.BlobStore, t models.Task) TaskView {
	v := TaskView{ID: t.ID, User: t.UserID, App: t.AppID, Completed: t.Completed, CreatedAt: t.CreatedAt}
	if t.Screenshot != nil && *t.Screenshot != "" && store != nil {
		url, err := store.URL(ctx, *t.Screenshot)
		if err != nil {
			utils.Log.WithError(err).WithField("task_id", t.ID).Warn("screenshot url")
		} else {
			v.Screenshot = &url
		}
	}
	return v
}

func NewTaskViews(ctx context.Context, store utils.BlobStore, tasks []models.Task) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewTaskView(ctx, store, t))
	}
	return out
}
