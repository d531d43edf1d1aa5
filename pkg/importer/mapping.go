package importer

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed mappings/*.yaml
var mappingFS embed.FS

// DefaultMapping is used when the caller does not name one.
const DefaultMapping = "assets"

// ErrUnknownMapping is returned for a mapping name with no embedded file.
var ErrUnknownMapping = errors.New("unknown import mapping")

// Record fields a mapping may bind header aliases to.
const (
	FieldAssetTag     = "asset_tag"
	FieldSerialNumber = "serial_number"
	FieldModelSKU     = "model_sku"
	FieldModelName    = "model_name"
	FieldDepartment   = "department"
	FieldLocation     = "location"
	FieldCostCenter   = "cost_center"
	FieldPurchaseDate = "purchase_date"
	FieldCost         = "cost"
	FieldCurrency     = "currency"
	FieldState        = "state"
	FieldCondition    = "condition"
	FieldNotes        = "notes"
)

var knownFields = map[string]bool{
	FieldAssetTag: true, FieldSerialNumber: true, FieldModelSKU: true, FieldModelName: true,
	FieldDepartment: true, FieldLocation: true, FieldCostCenter: true, FieldPurchaseDate: true,
	FieldCost: true, FieldCurrency: true, FieldState: true, FieldCondition: true, FieldNotes: true,
}

// Mapping describes how workbook sheets translate into asset records.
type Mapping struct {
	Version  int                     `yaml:"version"`
	Defaults Defaults                `yaml:"defaults"`
	Sheets   map[string]SheetMapping `yaml:"sheets"`
}

// Defaults fill fields a row leaves blank.
type Defaults struct {
	State     string `yaml:"state"`
	Condition string `yaml:"condition"`
	Currency  string `yaml:"currency"`
}

type SheetMapping struct {
	// NaturalKey lists the fields tried in order to match an existing asset.
	NaturalKey []string `yaml:"natural_key"`
	// Columns maps a record field to the header names it may appear under.
	Columns map[string][]string `yaml:"columns"`
}

// LoadMapping reads an embedded mapping by name, e.g. "assets".
func LoadMapping(name string) (*Mapping, error) {
	if name == "" {
		name = DefaultMapping
	}
	if strings.ContainsAny(name, `/\.`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMapping, name)
	}
	b, err := mappingFS.ReadFile(path.Join("mappings", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMapping, name)
	}
	return ParseMapping(b)
}

// ParseMapping decodes and checks a YAML mapping.
func ParseMapping(b []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if len(m.Sheets) == 0 {
		return nil, errors.New("mapping has no sheets")
	}
	for name, sm := range m.Sheets {
		for field := range sm.Columns {
			if !knownFields[field] {
				return nil, fmt.Errorf("sheet %s: unknown field %q", name, field)
			}
		}
		for _, key := range sm.NaturalKey {
			if key != FieldAssetTag && key != FieldSerialNumber {
				return nil, fmt.Errorf("sheet %s: natural key %q must be asset_tag or serial_number", name, key)
			}
		}
		if _, ok := sm.Columns[FieldModelSKU]; !ok {
			if _, ok := sm.Columns[FieldModelName]; !ok {
				return nil, fmt.Errorf("sheet %s: a model_sku or model_name column is required", name)
			}
		}
	}
	return &m, nil
}
