package exporter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"itam-api/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestWriteAssets(t *testing.T) {
	date := models.NewDate(2024, 3, 15)
	assets := []models.AssetDetail{
		{
			AssetTag:     ptr("LAP-0"),
			SerialNumber: ptr("LAP-0"),
			ModelName:    "ThinkPad X1",
			Manufacturer: ptr("Lenovo"),
			LocationName: ptr("HQ"),
			PurchaseDate: &date,
			Cost:         ptr(1249.5),
			Currency:     "USD",
			State:        "in_use",
			Condition:    "good",
			AssignedTo:   ptr("Ada Lovelace"),
		},
		{ModelName: "Dock", Currency: "USD", State: "in_stock", Condition: "excellent"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAssets(&buf, assets))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Asset Tag", rows[0][0])
	assert.Equal(t, "Notes", rows[0][len(Headers)-1])
	assert.Equal(t, []string{"LAP-0", "LAP-0", "ThinkPad X1", "Lenovo", "", "", "HQ", "", "2024-03-15", "1249.5",
		"USD", "in_use", "good", "Ada Lovelace"}, rows[1])
	assert.Equal(t, "", rows[2][0])
	assert.Equal(t, "Dock", rows[2][2])
	assert.Equal(t, "in_stock", rows[2][11])
}

func TestBuildEmpty(t *testing.T) {
	f, err := Build(nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
