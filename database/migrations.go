package database

import (
	"fmt"
	"strings"

	"appdownloader/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates or updates the schema inside a transaction where the dialect allows it.
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	})
}

// TaxonomyEntry is one category and its subcategories.
type TaxonomyEntry struct {
	Category      string
	SubCategories []string
}

// ParseTaxonomy reads "Cat:Sub1|Sub2;Cat2:Sub3". Blank names are skipped.
func ParseTaxonomy(s string) []TaxonomyEntry {
	var out []TaxonomyEntry
	for _, block := range strings.Split(s, ";") {
		name, subs, _ := strings.Cut(block, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		entry := TaxonomyEntry{Category: name}
		for _, sub := range strings.Split(subs, "|") {
			if sub = strings.TrimSpace(sub); sub != "" {
				entry.SubCategories = append(entry.SubCategories, sub)
			}
		}
		out = append(out, entry)
	}
	return out
}

// SeedTaxonomy inserts missing categories and subcategories. Existing rows are left alone.
func SeedTaxonomy(db *gorm.DB, entries []TaxonomyEntry) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Category{Name: e.Category}).Error; err != nil {
				return fmt.Errorf("seed category %q: %w", e.Category, err)
			}
			var cat models.Category
			if err := tx.Where("name = ?", e.Category).First(&cat).Error; err != nil {
				return fmt.Errorf("load category %q: %w", e.Category, err)
			}
			for _, name := range e.SubCategories {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.SubCategory{Name: name, CategoryID: cat.ID}).Error; err != nil {
					return fmt.Errorf("seed subcategory %q: %w", name, err)
				}
			}
		}
		return nil
	})
}
