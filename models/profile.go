package models

import "time"

type UserProfile struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"uniqueIndex;not null" json:"-"`
	TasksCompleted int64     `gorm:"column:tasks_completed;not null;default:0" json:"tasksCompleted"`
	PointsEarned   int64     `gorm:"column:points_earned;not null;default:0" json:"points_earned"`
	CreatedAt      time.Time `json:"-"`
	UpdatedAt      time.Time `json:"-"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}
