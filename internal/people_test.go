package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itam-api/internal/models"
	"itam-api/internal/qrcode"
)

func TestNormalizePersonEmail(t *testing.T) {
	cases := []struct {
		in, domain, want string
		wantErr          bool
	}{
		{in: "Ada@Example.com", want: "ada@example.com"},
		{in: "ada", wantErr: true},
		{in: "@example.com", wantErr: true},
		{in: "ada", domain: "corp.io", want: "ada@corp.io"},
		{in: " ADA@corp.io ", domain: "corp.io", want: "ada@corp.io"},
		{in: "ada@corp.io@corp.io", domain: "corp.io", want: "ada@corp.io"},
		{in: "ada@gmail.com", domain: "corp.io", wantErr: true},
		{in: "@corp.io", domain: "corp.io", wantErr: true},
	}
	for _, tc := range cases {
		got, err := normalizePersonEmail(tc.in, tc.domain)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCreatePersonRejectsForeignDomain(t *testing.T) {
	ts := newTestServer(t)
	ts.Config.EmailDomain = "corp.io"

	w := ts.do(t, http.MethodPost, "/people", models.CreatePersonRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@gmail.com",
	}, models.RoleAssetManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, w))
}

func TestCreatePersonManagerMustBeManager(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`SELECT user_type FROM people WHERE id = \$1 AND org_id = \$2 AND is_active`).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_type"}).AddRow(models.PersonGeneralUser))

	managedBy := int64(3)
	w := ts.do(t, http.MethodPost, "/people", models.CreatePersonRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", ManagedBy: &managedBy,
	}, models.RoleAssetManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MANAGER", errorCode(t, w))
}

func personRow(id int64, userType string) *sqlmock.Rows {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "org_id", "first_name", "last_name", "email", "department_id",
		"department_name", "user_type", "managed_by", "manager_name", "is_active", "created_at", "updated_at"}).
		AddRow(id, int64(1), "Ada", "Lovelace", "ada@example.com", nil, nil, userType, nil, nil, true, now, now)
}

func TestCreatePersonRejectsForeignDepartment(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM departments WHERE id = \$1 AND org_id = \$2\)`).
		WithArgs(int64(77), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	departmentID := int64(77)
	w := ts.do(t, http.MethodPost, "/people", models.CreatePersonRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", DepartmentID: &departmentID,
	}, models.RoleAssetManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(t, w))
}

func TestUpdatePersonRejectsForeignDepartment(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`FROM people_with_department WHERE id = \$1 AND org_id = \$2`).
		WithArgs(int64(4), int64(1)).
		WillReturnRows(personRow(4, models.PersonGeneralUser))
	ts.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM departments WHERE id = \$1 AND org_id = \$2\)`).
		WithArgs(int64(77), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	w := ts.do(t, http.MethodPut, "/people/4", map[string]any{"department_id": 77}, models.RoleAssetManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "department 77 does not exist")
}

func expectDeactivation(m sqlmock.Sqlmock, personID int64, assetIDs ...int64) {
	m.ExpectBegin()
	m.ExpectExec(`UPDATE people SET is_active = false, updated_at = now\(\) WHERE id = \$1 AND org_id = \$2`).
		WithArgs(personID, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows([]string{"asset_id"})
	for _, id := range assetIDs {
		rows.AddRow(id)
	}
	m.ExpectQuery(`UPDATE asset_assignments SET returned_at = now\(\) WHERE person_id = \$1 AND returned_at IS NULL RETURNING asset_id`).
		WithArgs(personID).
		WillReturnRows(rows)
	m.ExpectCommit()
}

func TestDeactivatePersonReturnsAssets(t *testing.T) {
	ts := newTestServer(t)
	expectDeactivation(ts.mock, 9, 42)
	ts.mock.ExpectQuery(detailByID).
		WithArgs(int64(42), int64(1)).
		WillReturnRows(assetDetailRow(42, "LAT5440-4", ""))
	ts.mock.ExpectExec(`UPDATE assets SET qr_code_url = \$1`).
		WithArgs("http://files.test/42.png", int64(42), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := ts.do(t, http.MethodDelete, "/people/9", nil, models.RoleAssetManager)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	png := ts.store.get("42.png")
	require.NotEmpty(t, png)
	text, err := qrcode.DecodePNG(png)
	require.NoError(t, err)
	p, err := qrcode.ParseText(text)
	require.NoError(t, err)
	assert.Equal(t, "LAT5440-4", p.AssetTag)
	assert.Empty(t, p.AssignedTo)
}

func TestDeactivatePersonWithoutAssets(t *testing.T) {
	ts := newTestServer(t)
	expectDeactivation(ts.mock, 9)

	w := ts.do(t, http.MethodDelete, "/people/9", nil, models.RoleAssetManager)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeactivatePersonReportsQRFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.store.putErr = errors.New("bucket unavailable")
	expectDeactivation(ts.mock, 9, 42)
	ts.mock.ExpectQuery(detailByID).
		WithArgs(int64(42), int64(1)).
		WillReturnRows(assetDetailRow(42, "LAT5440-4", ""))

	w := ts.do(t, http.MethodDelete, "/people/9", nil, models.RoleAssetManager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Warnings, 1)
	assert.Contains(t, body.Warnings[0], "asset 42")
}

func TestDeactivateMissingPerson(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectBegin()
	ts.mock.ExpectExec(`UPDATE people SET is_active = false`).
		WithArgs(int64(404), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ts.mock.ExpectRollback()

	w := ts.do(t, http.MethodDelete, "/people/404", nil, models.RoleAssetManager)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
