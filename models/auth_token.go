package models

import "time"

// AuthToken is the single bearer token of a user. The key is issued by utils.IssueTokenKey.
type AuthToken struct {
	Key       string    `gorm:"primaryKey;size:255" json:"-"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"-"`
	CreatedAt time.Time `json:"-"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (AuthToken) TableName() string {
	return "auth_tokens"
}

// All returns every model of the schema in dependency order, for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&AuthToken{},
		&UserProfile{},
		&Category{},
		&SubCategory{},
		&AndroidApp{},
		&Task{},
	}
}
