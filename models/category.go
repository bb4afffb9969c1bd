package models

type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;uniqueIndex;not null" json:"name"`

	SubCategories []SubCategory `gorm:"foreignKey:CategoryID" json:"subcategories,omitempty"`
}

func (Category) TableName() string {
	return "categories"
}

type SubCategory struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"size:100;not null;uniqueIndex:idx_subcategory_name_category" json:"name"`
	CategoryID uint   `gorm:"not null;uniqueIndex:idx_subcategory_name_category" json:"category"`

	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"-"`
}

func (SubCategory) TableName() string {
	return "subcategories"
}
