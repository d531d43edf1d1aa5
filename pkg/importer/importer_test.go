package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMapping(t *testing.T) {
	m, err := LoadMapping("")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
	require.Contains(t, m.Sheets, "Assets")
	assert.Equal(t, []string{FieldAssetTag, FieldSerialNumber}, m.Sheets["Assets"].NaturalKey)
	assert.Equal(t, "USD", m.Defaults.Currency)

	for _, name := range []string{"missing", "../mappings/assets", "assets.yaml"} {
		_, err := LoadMapping(name)
		assert.ErrorIs(t, err, ErrUnknownMapping, name)
	}
}

func TestParseMappingRejects(t *testing.T) {
	cases := map[string]string{
		"no sheets":     "version: 1\n",
		"unknown field": "sheets:\n  A:\n    columns:\n      model_name: [Model]\n      colour: [Colour]\n",
		"bad key":       "sheets:\n  A:\n    natural_key: [notes]\n    columns:\n      model_name: [Model]\n",
		"no model":      "sheets:\n  A:\n    columns:\n      notes: [Notes]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMapping([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestResolveHeaders(t *testing.T) {
	cols := resolveHeaders(
		[]string{" serial number ", "", "Model", "Dept", "Model"},
		map[string][]string{
			FieldSerialNumber: {"Serial Number", "S/N"},
			FieldModelName:    {"Model Name", "Model"},
			FieldDepartment:   {"Department", "Dept"},
			FieldLocation:     {"Location"},
		})

	assert.Equal(t, map[string]int{
		FieldSerialNumber: 0,
		FieldModelName:    2,
		FieldDepartment:   3,
	}, cols)
}

func TestFieldValues(t *testing.T) {
	cols := map[string]int{FieldModelName: 0, FieldNotes: 1, FieldCost: 5}
	assert.Nil(t, fieldValues([]string{"", ""}, cols))
	assert.Equal(t, map[string]string{FieldModelName: "X1"}, fieldValues([]string{"X1", ""}, cols))
}

func TestParseRecord(t *testing.T) {
	d := Defaults{State: "in_stock", Condition: "good", Currency: "USD"}

	t.Run("applies defaults", func(t *testing.T) {
		rec, err := parseRecord(map[string]string{FieldModelSKU: "LAP"}, d)
		require.NoError(t, err)
		assert.Equal(t, "in_stock", rec.State)
		assert.Equal(t, "good", rec.Condition)
		assert.Equal(t, "USD", rec.Currency)
		assert.Nil(t, rec.PurchaseDate)
		assert.Nil(t, rec.Cost)
	})

	t.Run("parses values", func(t *testing.T) {
		rec, err := parseRecord(map[string]string{
			FieldModelName:    "ThinkPad",
			FieldPurchaseDate: "03/15/2024",
			FieldCost:         "$1,249.50",
			FieldCurrency:     "eur",
			FieldState:        "In Use",
			FieldCondition:    "Fair",
		}, d)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-15", rec.PurchaseDate.String())
		assert.InDelta(t, 1249.5, *rec.Cost, 0.001)
		assert.Equal(t, "EUR", rec.Currency)
		assert.Equal(t, "in_use", rec.State)
		assert.Equal(t, "fair", rec.Condition)
	})

	t.Run("excel serial date", func(t *testing.T) {
		rec, err := parseRecord(map[string]string{FieldModelSKU: "LAP", FieldPurchaseDate: "45366"}, d)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-15", rec.PurchaseDate.String())
	})

	bad := map[string]map[string]string{
		"no model":  {FieldNotes: "x"},
		"date":      {FieldModelSKU: "LAP", FieldPurchaseDate: "soon"},
		"cost":      {FieldModelSKU: "LAP", FieldCost: "-3"},
		"currency":  {FieldModelSKU: "LAP", FieldCurrency: "dollars"},
		"state":     {FieldModelSKU: "LAP", FieldState: "stolen"},
		"condition": {FieldModelSKU: "LAP", FieldCondition: "mint"},
	}
	for name, values := range bad {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := parseRecord(values, d)
			assert.Error(t, err)
		})
	}
}
