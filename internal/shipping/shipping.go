package shipping

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"storefront/backend/internal/domain"
)

//go:embed areas.json
var defaultAreas []byte

type Area struct {
	Name    string                `json:"area"`
	Price   int64                 `json:"price"`
	Method  domain.ShippingMethod `json:"method"`
	ZipList []int                 `json:"zipList"`
}

type Lookup struct {
	areas []Area
}

func New(areas []Area) *Lookup {
	return &Lookup{areas: areas}
}

// Default returns the lookup backed by the table compiled into the binary.
func Default() *Lookup {
	areas, err := parse(defaultAreas)
	if err != nil {
		panic(fmt.Sprintf("shipping: embedded areas.json is invalid: %v", err))
	}
	return New(areas)
}

// Load reads an areas table from path, or the embedded default when path is
// empty.
func Load(path string) (*Lookup, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shipping areas: %w", err)
	}
	areas, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse shipping areas %s: %w", path, err)
	}
	return New(areas), nil
}

// AreaFor returns the first area whose zip list contains zip.
func (l *Lookup) AreaFor(zip int) (Area, bool) {
	for _, area := range l.areas {
		if slices.Contains(area.ZipList, zip) {
			return area, true
		}
	}
	return Area{}, false
}

func parse(raw []byte) ([]Area, error) {
	var areas []Area
	if err := json.Unmarshal(raw, &areas); err != nil {
		return nil, err
	}
	for i, area := range areas {
		if area.Price < 0 {
			return nil, fmt.Errorf("area %d (%s): negative price", i, area.Name)
		}
	}
	return areas, nil
}
