package models

import "time"

type AndroidApp struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Points        int64     `gorm:"not null;default:0" json:"points"`
	CategoryID    uint      `gorm:"column:category_id;not null;index" json:"category"`
	SubCategoryID *uint     `gorm:"column:subcategory_id;index" json:"subcategory"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`

	// Relations
	Category    *Category    `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"-"`
	SubCategory *SubCategory `gorm:"foreignKey:SubCategoryID;constraint:OnDelete:CASCADE" json:"-"`
}

func (AndroidApp) TableName() string {
	return "android_apps"
}
