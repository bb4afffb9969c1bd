package models

import "time"

// Task records that a user downloaded an app. It starts pending and becomes completed once a
// screenshot is uploaded; completed is terminal.
type Task struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_task_user_app" json:"user"`
	AppID      uint      `gorm:"column:app_id;not null;uniqueIndex:idx_task_user_app" json:"app"`
	Completed  bool      `gorm:"not null;default:false" json:"completed"`
	Screenshot *string   `gorm:"size:255" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	User *User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	App  *AndroidApp `gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Task) TableName() string {
	return "tasks"
}
