//go:build integration

package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"itam-api/internal"
	"itam-api/internal/auth"
	"itam-api/internal/config"
	"itam-api/internal/models"
	"itam-api/internal/testutil"
)

const (
	testSecret   = "supersecretkeyforintegrationtestingonly"
	testIssuer   = "itam-api"
	testAudience = "itam-api"
)

var testServer *internal.Server

func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION") != "1" {
		os.Exit(0)
	}
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	db := testutil.NewTestDB(&testing.T{})
	testutil.ResetSchema(&testing.T{}, db)

	qrDir, err := os.MkdirTemp("", "itam-qr-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer os.RemoveAll(qrDir)

	cfg := &config.Config{
		Env:                "test",
		DatabaseDSN:        testutil.DSN(),
		JWTSecret:          testSecret,
		JWTIssuer:          testIssuer,
		JWTAudience:        testAudience,
		JWTExpiry:          time.Hour,
		CORSAllowedOrigins: []string{"*"},
		Storage: config.StorageConfig{
			Driver:        "local",
			LocalDir:      qrDir,
			PublicBaseURL: "http://localhost:8080",
		},
		MaxLoginAttempts: 5,
		LockoutDuration:  time.Minute,
		QRSize:           128,
	}

	testServer, err = internal.NewServer(ctx, cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintln(os.Stderr, "start server:", err)
		return 1
	}
	defer testServer.Close()

	return m.Run()
}

func token(t *testing.T, orgID int64, roles ...string) string {
	t.Helper()
	m := auth.NewJWTManager(testSecret, testIssuer, testAudience, time.Hour)
	tok, err := m.GenerateToken(1, orgID, roles)
	require.NoError(t, err)
	return tok
}

// call sends a JSON request as an org admin of the main tenant and decodes
// the response into out when it is non-nil.
func call(t *testing.T, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()
	return callAs(t, token(t, 1, models.RoleOrgAdmin), method, path, body, out)
}

func callAs(t *testing.T, tok, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	testServer.Router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := callAs(t, "", http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestUnauthorizedAccess(t *testing.T) {
	w := callAs(t, "", http.MethodGet, "/assets", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = callAs(t, "invalid-token", http.MethodGet, "/assets", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestViewerCannotWrite(t *testing.T) {
	w := callAs(t, token(t, 1, models.RoleViewer), http.MethodPost, "/departments",
		models.DepartmentRequest{Name: "Nope"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAssetLifecycle(t *testing.T) {
	var model models.AssetModel
	sku := "LAT5440"
	w := call(t, http.MethodPost, "/asset-models", models.AssetModelRequest{
		Name: "Latitude 5440", Vendor: strPtr("Dell"), SKU: &sku,
	}, &model)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var person models.Person
	w = call(t, http.MethodPost, "/people", models.CreatePersonRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
	}, &person)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var first, second models.CreateAssetResponse
	w = call(t, http.MethodPost, "/assets", models.CreateAssetRequest{
		ModelID: model.ID, PersonID: &person.ID, SerialNumber: strPtr("SN-1"),
	}, &first)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = call(t, http.MethodPost, "/assets", models.CreateAssetRequest{ModelID: model.ID}, &second)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.NotNil(t, first.AssetTag)
	require.NotNil(t, second.AssetTag)
	assert.Equal(t, "LAT5440-0", *first.AssetTag)
	assert.Equal(t, "LAT5440-1", *second.AssetTag)
	require.NotNil(t, first.AssignedTo)
	assert.Equal(t, "Ada Lovelace", *first.AssignedTo)
	assert.NotNil(t, first.QRCodeURL)
	assert.Empty(t, first.Warnings)

	t.Run("by tag", func(t *testing.T) {
		var got models.AssetDetail
		w := call(t, http.MethodGet, "/assets/by-tag/LAT5440-1", nil, &got)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("scan", func(t *testing.T) {
		var body struct {
			Asset *models.AssetDetail `json:"asset"`
		}
		text := fmt.Sprintf(`{"id":%d,"asset_tag":"LAT5440-0","model":"Latitude 5440","manufacturer":"Dell"}`, first.ID)
		w := call(t, http.MethodPost, "/assets/scan", models.ScanRequest{Text: text}, &body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotNil(t, body.Asset)
		assert.Equal(t, first.ID, body.Asset.ID)
	})

	t.Run("reassign closes the open assignment", func(t *testing.T) {
		var other models.Person
		w := call(t, http.MethodPost, "/people", models.CreatePersonRequest{
			FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com",
		}, &other)
		require.Equal(t, http.StatusCreated, w.Code)

		w = call(t, http.MethodPost, fmt.Sprintf("/assets/%d/assignments", first.ID),
			models.AssignAssetRequest{PersonID: other.ID}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var history []models.AssetAssignment
		w = call(t, http.MethodGet, fmt.Sprintf("/assets/%d/assignments", first.ID), nil, &history)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, history, 2)
		assert.Equal(t, other.ID, history[0].PersonID)
		assert.Nil(t, history[0].ReturnedAt)
		assert.NotNil(t, history[1].ReturnedAt)
	})

	t.Run("other tenants cannot see it", func(t *testing.T) {
		var org models.Organization
		w := call(t, http.MethodPost, "/organizations", models.OrganizationRequest{Name: "Tenant B"}, &org)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = callAs(t, token(t, org.ID, models.RoleOrgAdmin), http.MethodGet,
			fmt.Sprintf("/assets/%d", first.ID), nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSoftwareLicenses(t *testing.T) {
	var title models.SoftwareTitle
	w := call(t, http.MethodPost, "/software", models.CreateSoftwareRequest{Name: "Office 365"}, &title)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var person models.Person
	w = call(t, http.MethodPost, "/people", models.CreatePersonRequest{
		FirstName: "Alan", LastName: "Turing", Email: "alan@example.com",
	}, &person)
	require.Equal(t, http.StatusCreated, w.Code)

	assignPath := fmt.Sprintf("/software/%d/assignments", title.ID)
	w = call(t, http.MethodPost, assignPath, models.AssignLicenseRequest{PersonID: person.ID}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "NO_LICENSES_AVAILABLE")

	w = call(t, http.MethodPost, fmt.Sprintf("/software/%d/licenses", title.ID), models.AddLicensesRequest{Amount: 1}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var seat models.SoftwareAssignment
	w = call(t, http.MethodPost, assignPath, models.AssignLicenseRequest{PersonID: person.ID}, &seat)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(t, http.MethodDelete, fmt.Sprintf("%s/%d", assignPath, seat.ID), nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	var after models.SoftwareTitle
	w = call(t, http.MethodGet, fmt.Sprintf("/software/%d", title.ID), nil, &after)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, after.CountUtilized)
	assert.Equal(t, 1, after.CountAvailable)
}

func strPtr(s string) *string { return &s }
