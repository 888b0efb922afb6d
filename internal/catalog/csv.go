package catalog

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/greenshop/internal/model"
)

// setField assigns one CSV cell to e. Unknown columns are ignored.
func setField(e *Entry, column, v string) error {
	var err error
	switch column {
	case "id":
		e.ID = v
	case "name":
		e.Name = v
	case "description":
		e.Description = v
	case "category":
		e.Category = v
	case "image_url":
		e.ImageURL = v
	case "price":
		e.Price, err = parseFloat(v)
	case "carbon_impact":
		e.CarbonImpact, err = parseFloat(v)
	case "sustainability_score":
		e.SustainabilityScore, err = parseFloat(v)
	case "in_stock":
		if v != "" {
			var b bool
			b, err = strconv.ParseBool(v)
			e.InStock = &b
		}
	}
	return err
}

func parseFloat(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	return strings.ReplaceAll(h, "-", "_")
}

// LoadCSV parses a catalog with a header row. Headers are matched
// case-insensitively with spaces and dashes read as underscores; only the
// name column is required.
func LoadCSV(r io.Reader) ([]model.Product, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []model.Product{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read csv header")
	}

	names := make([]string, len(header))
	hasName := false
	for i, h := range header {
		names[i] = normalizeHeader(h)
		hasName = hasName || names[i] == "name"
	}
	if !hasName {
		return nil, eris.New("catalog: csv header has no name column")
	}

	var entries []Entry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: read csv line %d", line)
		}

		var e Entry
		for i, v := range record {
			if i >= len(names) {
				continue
			}
			if err := setField(&e, names[i], strings.TrimSpace(v)); err != nil {
				return nil, eris.Wrapf(err, "catalog: csv line %d column %s", line, names[i])
			}
		}
		entries = append(entries, e)
	}
	return build(entries)
}
