package services

import (
	"context"
	"fmt"
	"strings"

	"appdownloader/database"
	"appdownloader/models"
	"appdownloader/utils"

	"gorm.io/gorm"
)

type AddAppInput struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Points      *int64     `json:"points" validate:"required,gte=0"`
	Category    *utils.Ref `json:"category" validate:"required"`
	SubCategory *utils.Ref `json:"subcategory"`
}

// AddApp creates a catalog entry. The category and subcategory may be given by id or by name;
// a subcategory must belong to the chosen category.
func AddApp(ctx context.Context, db *gorm.DB, in AddAppInput) (*models.AndroidApp, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, err
	}
	if in.Category.IsZero() {
		return nil, utils.NewValidationError("Validation failed", map[string]string{"category": "This field is required."})
	}
	db = db.WithContext(ctx)

	cat, err := findCategory(db, *in.Category)
	if err != nil {
		return nil, err
	}

	app := models.AndroidApp{Name: in.Name, Points: *in.Points, CategoryID: cat.ID}
	if in.SubCategory != nil && !in.SubCategory.IsZero() {
		sub, err := findSubCategory(db, cat.ID, *in.SubCategory)
		if err != nil {
			return nil, err
		}
		app.SubCategoryID = &sub.ID
	}

	if err := db.Create(&app).Error; err != nil {
		return nil, utils.Internal(fmt.Errorf("create app: %w", err))
	}
	utils.Log.WithFields(map[string]interface{}{"app_id": app.ID, "name": app.Name, "points": app.Points}).Info("app added")
	return &app, nil
}

func findCategory(db *gorm.DB, ref utils.Ref) (*models.Category, error) {
	var cat models.Category
	q := db.Model(&models.Category{})
	if ref.ID != 0 {
		q = q.Where("id = ?", ref.ID)
	} else {
		q = q.Where("name = ?", ref.Name)
	}
	if err := q.First(&cat).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, utils.NewValidationError("Validation failed", map[string]string{"category": "Unknown category."})
		}
		return nil, utils.Internal(fmt.Errorf("load category: %w", err))
	}
	return &cat, nil
}

func findSubCategory(db *gorm.DB, categoryID uint, ref utils.Ref) (*models.SubCategory, error) {
	var sub models.SubCategory
	q := db.Model(&models.SubCategory{})
	if ref.ID != 0 {
		q = q.Where("id = ?", ref.ID)
	} else {
		q = q.Where("name = ? AND category_id = ?", ref.Name, categoryID)
	}
	if err := q.First(&sub).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, utils.NewValidationError("Validation failed", map[string]string{"subcategory": "Unknown subcategory."})
		}
		return nil, utils.Internal(fmt.Errorf("load subcategory: %w", err))
	}
	if sub.CategoryID != categoryID {
		return nil, utils.NewValidationError("Validation failed", map[string]string{"subcategory": "Subcategory does not belong to the selected category."})
	}
	return &sub, nil
}

// ListApps returns the whole catalog ordered by id.
func ListApps(ctx context.Context, db *gorm.DB) ([]models.AndroidApp, error) {
	apps := make([]models.AndroidApp, 0)
	if err := db.WithContext(ctx).Order("id ASC").Find(&apps).Error; err != nil {
		return nil, utils.Internal(fmt.Errorf("list apps: %w", err))
	}
	return apps, nil
}

func ListCategories(ctx context.Context, db *gorm.DB) ([]models.Category, error) {
	cats := make([]models.Category, 0)
	err := db.WithContext(ctx).
		Preload("SubCategories", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Order("id ASC").Find(&cats).Error
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("list categories: %w", err))
	}
	return cats, nil
}
