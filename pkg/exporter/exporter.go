// Package exporter writes asset lists as Excel workbooks. The columns line
// up with the default import mapping so an export can be edited and
// re-imported.
package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"itam-api/internal/models"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	SheetName   = "Assets"
)

// Headers is the first row of every export.
var Headers = []interface{}{
	"Asset Tag", "Serial Number", "Model", "Manufacturer", "Category", "Department", "Location",
	"Cost Center", "Purchase Date", "Cost", "Currency", "State", "Condition", "Assigned To",
	"Assigned Email", "Notes",
}

func str(s *string) interface{} {
	if s == nil {
		return ""
	}
	return *s
}

func assetRow(a models.AssetDetail) []interface{} {
	var purchased, cost interface{} = "", ""
	if a.PurchaseDate != nil {
		purchased = a.PurchaseDate.String()
	}
	if a.Cost != nil {
		cost = *a.Cost
	}
	return []interface{}{
		str(a.AssetTag), str(a.SerialNumber), a.ModelName, str(a.Manufacturer), str(a.CategoryName),
		str(a.DepartmentName), str(a.LocationName), str(a.CostCenterName), purchased, cost, a.Currency,
		a.State, a.Condition, str(a.AssignedTo), str(a.AssignedEmail), str(a.Notes),
	}
}

// Build lays the assets out on a single styled sheet.
func Build(assets []models.AssetDetail) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(SheetName, "A1", &Headers); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return nil, err
	}

	for i, a := range assets {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := assetRow(a)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "B", 18)
	_ = f.SetColWidth(SheetName, "C", "H", 22)
	_ = f.SetColWidth(SheetName, "N", "O", 28)
	_ = f.SetColWidth(SheetName, "P", "P", 40)
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}
	return f, nil
}

// WriteAssets builds the workbook and streams it to w.
func WriteAssets(w io.Writer, assets []models.AssetDetail) error {
	f, err := Build(assets)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
