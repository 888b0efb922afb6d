// Package catalog loads seed product catalogs from YAML or CSV files.
package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/greenshop/internal/model"
)

// idNamespace scopes the name-derived product IDs so reseeding the same
// catalog updates rows instead of duplicating them.
var idNamespace = uuid.MustParse("6f1c2a57-3d0e-4b7a-9a43-2e5d8f0c91b4")

// ProductID returns the stable ID for a product name.
func ProductID(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Entry is one product as written in a seed file.
type Entry struct {
	ID                  string  `yaml:"id"`
	Name                string  `yaml:"name"`
	Description         string  `yaml:"description"`
	Price               float64 `yaml:"price"`
	Category            string  `yaml:"category"`
	CarbonImpact        float64 `yaml:"carbon_impact"`
	SustainabilityScore float64 `yaml:"sustainability_score"`
	ImageURL            string  `yaml:"image_url"`
	InStock             *bool   `yaml:"in_stock"`
}

type seedFile struct {
	Products []Entry `yaml:"products"`
}

// Load reads a catalog file, choosing the parser by extension.
func Load(path string) ([]model.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(f)
	case ".csv":
		return LoadCSV(f)
	default:
		return nil, eris.Errorf("catalog: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadYAML parses a document of the form `products: [...]`.
func LoadYAML(r io.Reader) ([]model.Product, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return []model.Product{}, nil
		}
		return nil, eris.Wrap(err, "catalog: decode yaml")
	}
	return build(doc.Products)
}

// build converts entries to products, rejecting invalid or duplicate ones.
func build(entries []Entry) ([]model.Product, error) {
	now := time.Now().UTC()
	products := make([]model.Product, 0, len(entries))
	seen := make(map[string]int, len(entries))
	var problems []string

	for i, e := range entries {
		p := e.product(now)
		if errs := p.Validate(); len(errs) > 0 {
			problems = append(problems, fmt.Sprintf("entry %d (%s): %s", i+1, e.Name, strings.Join(errs, ", ")))
			continue
		}
		if prev, dup := seen[p.ID]; dup {
			problems = append(problems, fmt.Sprintf("entry %d (%s): duplicates entry %d", i+1, e.Name, prev))
			continue
		}
		seen[p.ID] = i + 1
		products = append(products, p)
	}

	if len(problems) > 0 {
		return nil, eris.Errorf("catalog: %d invalid entries: %s", len(problems), strings.Join(problems, "; "))
	}
	return products, nil
}

func (e Entry) product(now time.Time) model.Product {
	p := model.Product{
		ID:                  strings.TrimSpace(e.ID),
		Name:                strings.TrimSpace(e.Name),
		Description:         e.Description,
		Price:               e.Price,
		Category:            model.ParseCategory(e.Category),
		CarbonImpact:        e.CarbonImpact,
		SustainabilityScore: e.SustainabilityScore,
		ImageURL:            e.ImageURL,
		InStock:             e.InStock == nil || *e.InStock,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if p.ID == "" && p.Name != "" {
		p.ID = ProductID(p.Name)
	}
	return p
}
