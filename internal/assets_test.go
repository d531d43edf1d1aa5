package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"itam-api/internal/models"
	"itam-api/internal/qrcode"
	"itam-api/pkg/exporter"
)

const detailByID = `FROM v_assets_detailed WHERE id = \$1 AND org_id = \$2`

func expectTagAllocation(mock sqlmock.Sqlmock, sku string, next int64) {
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("1:" + sku).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(substring\(asset_tag`).
		WithArgs(int64(1), "^"+sku+"-[0-9]+$").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(next))
}

func TestCreateAssetTagsAssignsAndPublishesQR(t *testing.T) {
	ts := newTestServer(t)
	m := ts.mock

	m.ExpectBegin()
	m.ExpectQuery(`SELECT sku FROM asset_models WHERE id = \$1 AND org_id = \$2`).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sku"}).AddRow("LAT5440"))
	expectTagAllocation(m, "LAT5440", 4)
	m.ExpectQuery(`INSERT INTO assets`).
		WithArgs(int64(1), int64(3), nil, nil, nil, nil, "LAT5440-4", "LAT5440-4",
			nil, nil, "USD", nil, "in_use", "excellent").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	m.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM people`).
		WithArgs(int64(9), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	m.ExpectExec(`UPDATE asset_assignments SET returned_at = now\(\)`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectExec(`INSERT INTO asset_assignments`).
		WithArgs(int64(42), int64(9)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	m.ExpectCommit()
	m.ExpectQuery(detailByID).
		WithArgs(int64(42), int64(1)).
		WillReturnRows(assetDetailRow(42, "LAT5440-4", "Ada Lovelace"))
	m.ExpectExec(`UPDATE assets SET qr_code_url = \$1`).
		WithArgs("http://files.test/42.png", int64(42), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	personID := int64(9)
	w := ts.do(t, http.MethodPost, "/assets",
		models.CreateAssetRequest{ModelID: 3, PersonID: &personID}, models.RoleAssetManager)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.CreateAssetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.ID)
	require.NotNil(t, resp.QRCodeURL)
	assert.Equal(t, "http://files.test/42.png", *resp.QRCodeURL)
	assert.Empty(t, resp.Warnings)

	png := ts.store.get("42.png")
	require.NotEmpty(t, png)
	text, err := qrcode.DecodePNG(png)
	require.NoError(t, err)
	p, err := qrcode.ParseText(text)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "LAT5440-4", p.AssetTag)
	assert.Equal(t, "Dell", p.Manufacturer)
	assert.Equal(t, "Ada Lovelace", p.AssignedTo)
}

func TestCreateAssetKeepsAssetWhenQRUploadFails(t *testing.T) {
	ts := newTestServer(t)
	ts.store.putErr = errors.New("bucket unavailable")
	m := ts.mock

	m.ExpectBegin()
	m.ExpectQuery(`SELECT sku FROM asset_models`).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sku"}).AddRow(nil))
	m.ExpectQuery(`INSERT INTO assets`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	m.ExpectCommit()
	m.ExpectQuery(detailByID).WithArgs(int64(7), int64(1)).WillReturnRows(assetDetailRow(7, "", ""))

	w := ts.do(t, http.MethodPost, "/assets", models.CreateAssetRequest{ModelID: 3}, models.RoleOrgAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.CreateAssetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.AssetTag)
	assert.Nil(t, resp.QRCodeURL)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "upload failed")
}

func TestCreateAssetUnknownModel(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectBegin()
	ts.mock.ExpectQuery(`SELECT sku FROM asset_models`).
		WithArgs(int64(99), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"sku"}))
	ts.mock.ExpectRollback()

	w := ts.do(t, http.MethodPost, "/assets", models.CreateAssetRequest{ModelID: 99}, models.RoleOrgAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(t, w))
}

func TestCreateAssetUnknownPersonRollsBack(t *testing.T) {
	ts := newTestServer(t)
	m := ts.mock
	m.ExpectBegin()
	m.ExpectQuery(`SELECT sku FROM asset_models`).
		WillReturnRows(sqlmock.NewRows([]string{"sku"}).AddRow(nil))
	m.ExpectQuery(`INSERT INTO assets`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	m.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	m.ExpectRollback()

	personID := int64(5)
	w := ts.do(t, http.MethodPost, "/assets",
		models.CreateAssetRequest{ModelID: 3, PersonID: &personID}, models.RoleOrgAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(t, w))
}

func TestCreateAssetValidation(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/assets",
		`{"model_id": 3, "state": "misplaced", "currency": "DOLLARS"}`, models.RoleOrgAdmin)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body validationErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_FAILED", body.Code)
	fields := map[string]bool{}
	for _, f := range body.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["state"])
	assert.True(t, fields["currency"])
}

func TestListAssetsPaging(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM v_assets_detailed`).
		WithArgs(int64(1), "%lat%", "%lat%", "%lat%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	ts.mock.ExpectQuery(`FROM v_assets_detailed .* ORDER BY asset_tag DESC LIMIT 10 OFFSET 10`).
		WithArgs(int64(1), "%lat%", "%lat%", "%lat%").
		WillReturnRows(assetDetailRow(1, "LAT5440-0", ""))

	w := ts.do(t, http.MethodGet, "/assets?q=lat&limit=10&offset=10&sort=-asset_tag,bogus", nil, models.RoleViewer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Data []models.AssetDetail `json:"data"`
		Page pageInfo             `json:"page"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, pageInfo{Limit: 10, Offset: 10, Total: 11}, body.Page)
}

func TestGetAssetByTagNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`FROM v_assets_detailed WHERE org_id = \$1 AND asset_tag = \$2`).
		WithArgs(int64(1), "NOPE-1").
		WillReturnRows(sqlmock.NewRows(assetDetailColumns()))

	w := ts.do(t, http.MethodGet, "/assets/by-tag/NOPE-1", nil, models.RoleViewer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAssetRemovesQRObject(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Put(context.Background(), "5.png", "image/png", []byte("png")))
	ts.mock.ExpectExec(`DELETE FROM assets WHERE id = \$1 AND org_id = \$2`).
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := ts.do(t, http.MethodDelete, "/assets/5", nil, models.RoleAssetManager)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, ts.store.get("5.png"))
}

func TestScanAssetText(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(detailByID).
		WithArgs(int64(42), int64(1)).
		WillReturnRows(assetDetailRow(42, "LAT5440-4", ""))

	text := `{"id":"42","asset_tag":"LAT5440-4","model":"Latitude 5440","manufacturer":"Dell"}`
	w := ts.do(t, http.MethodPost, "/assets/scan", models.ScanRequest{Text: text}, models.RoleTechnician)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp scanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.Payload.ID)
	require.NotNil(t, resp.Asset)
	assert.Equal(t, int64(42), resp.Asset.ID)
}

func TestScanAssetUnknownAssetReturnsPayloadOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(detailByID).
		WithArgs(int64(77), int64(1)).
		WillReturnRows(sqlmock.NewRows(assetDetailColumns()))

	text := `{"id":77,"asset_tag":"X-1","model":"M","manufacturer":"Acme"}`
	w := ts.do(t, http.MethodPost, "/assets/scan", models.ScanRequest{Text: text}, models.RoleViewer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"asset":null`)
}

func TestScanAssetRejectsForeignCodes(t *testing.T) {
	ts := newTestServer(t)
	for _, text := range []string{"", "https://example.com", `{"id":1,"asset_tag":"X-1"}`} {
		w := ts.do(t, http.MethodPost, "/assets/scan", models.ScanRequest{Text: text}, models.RoleViewer)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, text)
		assert.Equal(t, "INVALID_QR", errorCode(t, w))
	}
}

func TestScanAssetImage(t *testing.T) {
	ts := newTestServer(t)
	png, err := qrcode.Encode(qrcode.Payload{ID: 42, AssetTag: "LAT5440-4", Model: "Latitude 5440", Manufacturer: "Dell"}, 256)
	require.NoError(t, err)
	ts.mock.ExpectQuery(detailByID).
		WithArgs(int64(42), int64(1)).
		WillReturnRows(assetDetailRow(42, "LAT5440-4", ""))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("image", "tag.png")
	require.NoError(t, err)
	_, err = fw.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	tok, err := ts.JWTManager.GenerateToken(1, 1, []string{models.RoleViewer})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/assets/scan", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp scanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "LAT5440-4", resp.Payload.AssetTag)
}

func TestPayloadForUntaggedAsset(t *testing.T) {
	serial := "SN-778"
	vendor := "Dell"
	p := payloadFor(&models.AssetDetail{ID: 7, SerialNumber: &serial, ModelName: "Latitude 5440", Manufacturer: &vendor})
	assert.Equal(t, "SN-778", p.AssetTag)
	assert.NoError(t, p.Validate())
}

func TestCreateAssetRejectsForeignLocation(t *testing.T) {
	ts := newTestServer(t)
	m := ts.mock
	m.ExpectBegin()
	m.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM locations WHERE id = \$1 AND org_id = \$2\)`).
		WithArgs(int64(12), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	m.ExpectRollback()

	locationID := int64(12)
	w := ts.do(t, http.MethodPost, "/assets",
		models.CreateAssetRequest{ModelID: 3, LocationID: &locationID}, models.RoleAssetManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "location 12 does not exist")
}

func TestUpdateAssetRejectsForeignReferences(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM asset_models WHERE id = \$1 AND org_id = \$2\)`).
		WithArgs(int64(99), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ts.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM departments WHERE id = \$1 AND org_id = \$2\)`).
		WithArgs(int64(77), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	w := ts.do(t, http.MethodPut, "/assets/5",
		map[string]any{"model_id": 99, "department_id": 77}, models.RoleAssetManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "department 77 does not exist")
}

func TestUpdateAssetRepublishesQRWhenPayloadChanges(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		set  string
		arg  any
	}{
		{name: "state", body: map[string]any{"state": "maintenance"}, set: "state", arg: "maintenance"},
		{name: "serial", body: map[string]any{"serial_number": " SN-9 "}, set: "serial_number", arg: "SN-9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.mock.ExpectExec(`UPDATE assets SET updated_at = now\(\), ` + tc.set + ` = \$1 WHERE id = \$2 AND org_id = \$3`).
				WithArgs(tc.arg, int64(5), int64(1)).
				WillReturnResult(sqlmock.NewResult(0, 1))
			ts.mock.ExpectQuery(detailByID).
				WithArgs(int64(5), int64(1)).
				WillReturnRows(assetDetailRow(5, "LAT5440-5", ""))
			ts.mock.ExpectExec(`UPDATE assets SET qr_code_url = \$1`).
				WithArgs("http://files.test/5.png", int64(5), int64(1)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			w := ts.do(t, http.MethodPut, "/assets/5", tc.body, models.RoleAssetManager)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp models.CreateAssetResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.QRCodeURL)
			assert.Equal(t, "http://files.test/5.png", *resp.QRCodeURL)
			assert.NotEmpty(t, ts.store.get("5.png"))
		})
	}
}

func TestUpdateAssetNotesLeavesQRAlone(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec(`UPDATE assets SET updated_at = now\(\), notes = \$1 WHERE id = \$2 AND org_id = \$3`).
		WithArgs("Docked at desk 4", int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ts.mock.ExpectQuery(detailByID).
		WithArgs(int64(5), int64(1)).
		WillReturnRows(assetDetailRow(5, "LAT5440-5", ""))

	w := ts.do(t, http.MethodPut, "/assets/5", map[string]any{"notes": "Docked at desk 4"}, models.RoleAssetManager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, ts.store.get("5.png"))
}

func TestUpdateAssetMissing(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec(`UPDATE assets SET updated_at = now\(\), state = \$1`).
		WithArgs("retired", int64(404), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := ts.do(t, http.MethodPut, "/assets/404", map[string]any{"state": "retired"}, models.RoleAssetManager)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReturnAssetWithoutOpenAssignment(t *testing.T) {
	ts := newTestServer(t)
	m := ts.mock
	m.ExpectBegin()
	m.ExpectQuery(`SELECT id FROM assets WHERE id = \$1 AND org_id = \$2 FOR UPDATE`).
		WithArgs(int64(5), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	m.ExpectExec(`UPDATE asset_assignments SET returned_at = now\(\) WHERE asset_id = \$1 AND returned_at IS NULL`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectCommit()

	w := ts.do(t, http.MethodPost, "/assets/5/return", nil, models.RoleTechnician)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_ASSIGNED", errorCode(t, w))
	assert.Nil(t, ts.store.get("5.png"))
}

func TestRegenerateAssetQR(t *testing.T) {
	t.Run("stores the code", func(t *testing.T) {
		ts := newTestServer(t)
		ts.mock.ExpectQuery(detailByID).
			WithArgs(int64(5), int64(1)).
			WillReturnRows(assetDetailRow(5, "LAT5440-5", ""))
		ts.mock.ExpectExec(`UPDATE assets SET qr_code_url = \$1`).
			WithArgs("http://files.test/5.png", int64(5), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := ts.do(t, http.MethodPost, "/assets/5/qr", nil, models.RoleAssetManager)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"qr_code_url":"http://files.test/5.png"}`, w.Body.String())
		assert.NotEmpty(t, ts.store.get("5.png"))
	})

	t.Run("upload failure", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.putErr = errors.New("bucket unavailable")
		ts.mock.ExpectQuery(detailByID).
			WithArgs(int64(5), int64(1)).
			WillReturnRows(assetDetailRow(5, "LAT5440-5", ""))

		w := ts.do(t, http.MethodPost, "/assets/5/qr", nil, models.RoleAssetManager)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "QR_PUBLISH_FAILED", errorCode(t, w))
	})

	t.Run("unknown asset", func(t *testing.T) {
		ts := newTestServer(t)
		ts.mock.ExpectQuery(detailByID).
			WithArgs(int64(6), int64(1)).
			WillReturnRows(sqlmock.NewRows(assetDetailColumns()))

		w := ts.do(t, http.MethodPost, "/assets/6/qr", nil, models.RoleAssetManager)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRenderAssetQR(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(detailByID).
		WithArgs(int64(5), int64(1)).
		WillReturnRows(assetDetailRow(5, "LAT5440-5", "Ada Lovelace"))

	w := ts.do(t, http.MethodGet, "/assets/5/qr.png", nil, models.RoleViewer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, qrcode.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	text, err := qrcode.DecodePNG(w.Body.Bytes())
	require.NoError(t, err)
	p, err := qrcode.ParseText(text)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ID)
	assert.Equal(t, "LAT5440-5", p.AssetTag)
	assert.Equal(t, "Ada Lovelace", p.AssignedTo)
	assert.Nil(t, ts.store.get("5.png"))
}

func TestExportAssets(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`FROM v_assets_detailed WHERE \(org_id = \$1 AND state = \$2\) ORDER BY purchase_date DESC NULLS LAST, id DESC LIMIT 50000`).
		WithArgs(int64(1), "in_use").
		WillReturnRows(assetDetailRow(5, "LAT5440-5", "Ada Lovelace"))

	w := ts.do(t, http.MethodGet, "/assets/export?state=in_use", nil, models.RoleViewer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, exporter.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=assets_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exporter.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Asset Tag", rows[0][0])
	assert.Equal(t, "LAT5440-5", rows[1][0])
	assert.Equal(t, "Latitude 5440", rows[1][2])
	assert.Contains(t, rows[1], "Ada Lovelace")
}
