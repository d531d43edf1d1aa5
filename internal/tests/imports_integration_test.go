//go:build integration

package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"itam-api/internal/models"
	"itam-api/pkg/importer"
)

func workbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Assets"))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Assets", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func upload(t *testing.T, xlsx []byte, dryRun string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("dry_run", dryRun))
	fw, err := mw.CreateFormFile("file", "register.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(xlsx)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/imports/excel", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, 1, models.RoleAssetManager))
	w := httptest.NewRecorder()
	testServer.Router.ServeHTTP(w, req)
	return w
}

func TestExcelImport(t *testing.T) {
	sku := "PRO14"
	w := call(t, http.MethodPost, "/asset-models", models.AssetModelRequest{
		Name: "MacBook Pro 14", Vendor: strPtr("Apple"), SKU: &sku,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	xlsx := workbook(t, [][]interface{}{
		{"Serial Number", "SKU", "Cost", "State"},
		{"C02XYZ001", "PRO14", "2499.00", "In Use"},
		{"C02XYZ002", "PRO14", "$2,499", ""},
		{"C02XYZ003", "NOPE", "", ""},
	})

	var resp struct {
		Data importer.ImportSummary `json:"data"`
	}

	t.Run("dry run writes nothing", func(t *testing.T) {
		w := upload(t, xlsx, "true")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Data.DryRun)
		assert.Equal(t, 2, resp.Data.Inserted)
		assert.Equal(t, 1, resp.Data.Errors)

		w = call(t, http.MethodGet, "/assets?q=C02XYZ", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":0`)
	})

	t.Run("import then re-import updates", func(t *testing.T) {
		w := upload(t, xlsx, "false")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Data.Inserted)
		require.Len(t, resp.Data.Sheets, 1)
		require.Len(t, resp.Data.Sheets[0].Samples, 1)
		assert.Equal(t, 4, resp.Data.Sheets[0].Samples[0].Row)

		w = upload(t, xlsx, "false")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Data.Inserted)
		assert.Equal(t, 2, resp.Data.Updated)
	})
}
