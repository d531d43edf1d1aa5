package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tealeg/xlsx/v3"

	"itam-api/internal/models"
)

// Record is one asset row after header resolution and parsing.
type Record struct {
	AssetTag     string
	SerialNumber string
	ModelSKU     string
	ModelName    string
	Department   string
	Location     string
	CostCenter   string
	PurchaseDate *models.Date
	Cost         *float64
	Currency     string
	State        string
	Condition    string
	Notes        string
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
}

// resolveHeaders maps each mapped field to its column index. Header
// matching ignores case and surrounding spaces.
func resolveHeaders(headers []string, columns map[string][]string) map[string]int {
	byName := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToUpper(strings.TrimSpace(h))
		if _, dup := byName[key]; key != "" && !dup {
			byName[key] = i
		}
	}
	out := make(map[string]int, len(columns))
	for field, aliases := range columns {
		for _, alias := range aliases {
			if idx, ok := byName[strings.ToUpper(strings.TrimSpace(alias))]; ok {
				out[field] = idx
				break
			}
		}
	}
	return out
}

// readRows returns the sheet's cells as trimmed strings, header row first.
func readRows(sheet *xlsx.Sheet) ([][]string, error) {
	var out [][]string
	for r := 0; r < sheet.MaxRow; r++ {
		row, err := sheet.Row(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r+1, err)
		}
		cells := make([]string, sheet.MaxCol)
		for c := 0; c < sheet.MaxCol; c++ {
			cells[c] = strings.TrimSpace(row.GetCell(c).String())
		}
		out = append(out, cells)
	}
	return out, nil
}

// fieldValues picks the mapped cells out of a row. An all-blank row yields nil.
func fieldValues(cells []string, cols map[string]int) map[string]string {
	values := make(map[string]string, len(cols))
	for field, idx := range cols {
		if idx < len(cells) && cells[idx] != "" {
			values[field] = cells[idx]
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

// parseRecord converts field values into a Record, applying defaults.
func parseRecord(values map[string]string, d Defaults) (Record, error) {
	rec := Record{
		AssetTag:     values[FieldAssetTag],
		SerialNumber: values[FieldSerialNumber],
		ModelSKU:     values[FieldModelSKU],
		ModelName:    values[FieldModelName],
		Department:   values[FieldDepartment],
		Location:     values[FieldLocation],
		CostCenter:   values[FieldCostCenter],
		Currency:     strings.ToUpper(values[FieldCurrency]),
		State:        normalizeEnum(values[FieldState]),
		Condition:    normalizeEnum(values[FieldCondition]),
		Notes:        values[FieldNotes],
	}
	if rec.ModelSKU == "" && rec.ModelName == "" {
		return rec, fmt.Errorf("model is required")
	}

	if v, ok := values[FieldPurchaseDate]; ok {
		date, err := parseDate(v)
		if err != nil {
			return rec, err
		}
		rec.PurchaseDate = &date
	}
	if v, ok := values[FieldCost]; ok {
		cost, err := strconv.ParseFloat(strings.NewReplacer(",", "", "$", "").Replace(v), 64)
		if err != nil || cost < 0 {
			return rec, fmt.Errorf("invalid cost %q", v)
		}
		rec.Cost = &cost
	}

	if rec.Currency == "" {
		rec.Currency = d.Currency
	}
	if rec.Currency != "" && len(rec.Currency) != 3 {
		return rec, fmt.Errorf("invalid currency %q", rec.Currency)
	}
	if rec.State == "" {
		rec.State = d.State
	}
	if rec.State != "" && !contains(models.AssetStates, rec.State) {
		return rec, fmt.Errorf("invalid state %q", values[FieldState])
	}
	if rec.Condition == "" {
		rec.Condition = d.Condition
	}
	if rec.Condition != "" && !contains(models.AssetConditions, rec.Condition) {
		return rec, fmt.Errorf("invalid condition %q", values[FieldCondition])
	}
	return rec, nil
}

// normalizeEnum turns "In Stock" into "in_stock".
func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func parseDate(v string) (models.Date, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return models.NewDate(t.Year(), t.Month(), t.Day()), nil
		}
	}
	// Unformatted date cells come through as Excel serial day numbers.
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 {
		t := xlsx.TimeFromExcelTime(serial, false)
		return models.NewDate(t.Year(), t.Month(), t.Day()), nil
	}
	return models.Date{}, fmt.Errorf("invalid date %q", v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
