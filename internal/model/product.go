package model

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is the closed set of product categories and preference tags.
// Add new values to the const block and to knownCategories.
type Category string

const (
	CategoryUnknown     Category = ""
	CategoryClothing    Category = "clothing"
	CategoryFood        Category = "food"
	CategoryHome        Category = "home"
	CategoryBeauty      Category = "beauty"
	CategoryElectronics Category = "electronics"
	CategoryOrganic     Category = "organic"
	CategoryZeroWaste   Category = "zero-waste"
	CategoryLocal       Category = "local"
	CategoryFairTrade   Category = "fair-trade"
	CategoryVegan       Category = "vegan"
)

var knownCategories = []Category{
	CategoryClothing,
	CategoryFood,
	CategoryHome,
	CategoryBeauty,
	CategoryElectronics,
	CategoryOrganic,
	CategoryZeroWaste,
	CategoryLocal,
	CategoryFairTrade,
	CategoryVegan,
}

// Categories returns every known category in declaration order.
func Categories() []Category {
	out := make([]Category, len(knownCategories))
	copy(out, knownCategories)
	return out
}

// ParseCategory normalizes a free-form tag. Unrecognized tags map to
// CategoryUnknown rather than an error.
func ParseCategory(s string) Category {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "-")
	norm = strings.ReplaceAll(norm, "_", "-")
	for _, c := range knownCategories {
		if string(c) == norm {
			return c
		}
	}
	return CategoryUnknown
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c != CategoryUnknown && ParseCategory(string(c)) == c
}

// Label returns a display label, e.g. "Zero Waste".
func (c Category) Label() string {
	if !c.Valid() {
		return "Unknown"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(c), "-", " "))
}

// Product is a sellable catalog item with its sustainability figures.
type Product struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Price               float64   `json:"price"`
	Category            Category  `json:"category"`
	CarbonImpact        float64   `json:"carbonImpact"`
	SustainabilityScore float64   `json:"sustainabilityScore"`
	ImageURL            string    `json:"imageUrl,omitempty"`
	InStock             bool      `json:"inStock"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Validate checks the invariants a product must satisfy before it is stored.
func (p Product) Validate() []string {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name is required")
	}
	if !finite(p.Price) || p.Price < 0 {
		errs = append(errs, "price must be >= 0")
	}
	if !p.Category.Valid() {
		errs = append(errs, "category is not recognized")
	}
	if !finite(p.CarbonImpact) || p.CarbonImpact < 0 {
		errs = append(errs, "carbonImpact must be >= 0")
	}
	if !finite(p.SustainabilityScore) || p.SustainabilityScore < 0 || p.SustainabilityScore > 100 {
		errs = append(errs, "sustainabilityScore must be between 0 and 100")
	}
	return errs
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category          Category
	MinSustainability float64
	InStockOnly       bool
	Limit             int
	Offset            int
}

// ProductPage is one page of a catalog listing.
type ProductPage struct {
	Products []Product `json:"products"`
	Page     int       `json:"page"`
	Pages    int       `json:"pages"`
	Total    int       `json:"total"`
}
