// Package extract coordinates fact extraction from raw content: a primary
// extractor with a heterogeneous fallback, bounded-concurrency image
// captioning, and category normalization into a closed set.
package extract

import (
	"log/slog"
	"strings"
)

// Category is one of the closed set of fact categories the graph understands.
type Category string

const (
	CategoryHobby    Category = "hobby"
	CategoryActivity Category = "activity"
	CategorySport    Category = "sport"
	CategoryMusic    Category = "music"
	CategoryArt      Category = "art"
	CategoryFood     Category = "food"
	CategoryLocation Category = "location"
	CategoryBrand    Category = "brand"
)

// Interest reports whether the category maps to a weighted interest edge
// (as opposed to a last-write-wins affiliation edge).
func (c Category) Interest() bool {
	switch c {
	case CategoryHobby, CategoryActivity, CategorySport, CategoryMusic, CategoryArt, CategoryFood:
		return true
	}
	return false
}

// Facts maps canonical categories to extracted string values.
type Facts map[Category][]string

// Total returns the number of values across all categories.
func (f Facts) Total() int {
	n := 0
	for _, vals := range f {
		n += len(vals)
	}
	return n
}

// synonyms maps vendor category labels (plurals, cross-vendor naming) to
// canonical categories. Anything outside this table and the canonical set
// itself is rejected.
var synonyms = map[string]Category{
	"hobbies":    CategoryHobby,
	"interest":   CategoryHobby,
	"interests":  CategoryHobby,
	"activities": CategoryActivity,
	"sports":     CategorySport,
	"musics":     CategoryMusic,
	"genre":      CategoryMusic,
	"arts":       CategoryArt,
	"foods":      CategoryFood,
	"cuisine":    CategoryFood,
	"locations":  CategoryLocation,
	"place":      CategoryLocation,
	"places":     CategoryLocation,
	"brands":     CategoryBrand,
	"company":    CategoryBrand,
	"companies":  CategoryBrand,
}

// canonical is the closed set of valid categories.
var canonical = map[Category]bool{
	CategoryHobby:    true,
	CategoryActivity: true,
	CategorySport:    true,
	CategoryMusic:    true,
	CategoryArt:      true,
	CategoryFood:     true,
	CategoryLocation: true,
	CategoryBrand:    true,
}

// CanonicalCategory resolves a raw vendor label to a canonical category.
// Returns false when the label falls outside the known set.
func CanonicalCategory(label string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if canonical[Category(key)] {
		return Category(key), true
	}
	if cat, ok := synonyms[key]; ok {
		return cat, true
	}
	return "", false
}

// Normalize converts a raw vendor extraction into canonical Facts.
// Unknown categories are logged and dropped rather than passed through;
// values shorter than two characters are discarded.
func Normalize(raw map[string][]string, logger *slog.Logger) Facts {
	facts := Facts{}
	for label, values := range raw {
		cat, ok := CanonicalCategory(label)
		if !ok {
			logger.Warn("dropping unknown fact category", "category", label, "values", len(values))
			continue
		}
		for _, val := range values {
			val = strings.TrimSpace(val)
			if len(val) < 2 {
				continue
			}
			facts[cat] = append(facts[cat], val)
		}
	}
	return facts
}
