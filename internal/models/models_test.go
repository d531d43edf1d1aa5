package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateJSON(t *testing.T) {
	var req CreateAssetRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model_id":1,"purchase_date":"2024-02-29"}`), &req))
	require.NotNil(t, req.PurchaseDate)
	assert.Equal(t, "2024-02-29", req.PurchaseDate.String())

	out, err := json.Marshal(req.PurchaseDate)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-02-29"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"purchase_date":"29/02/2024"}`), &req))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2025, 3, 4, 15, 0, 0, 0, time.FixedZone("X", 3600))))
	assert.Equal(t, "2025-03-04", d.String())

	require.NoError(t, d.Scan([]byte("2023-12-31")))
	assert.Equal(t, "2023-12-31", d.String())

	assert.Error(t, d.Scan(42))

	v, err := NewDate(2024, time.January, 2).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", v)
}

func TestWarrantyStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, WarrantyExpired, WarrantyStatus(NewDate(2025, 6, 14), now))
	assert.Equal(t, WarrantyActive, WarrantyStatus(NewDate(2025, 6, 15), now))
	assert.Equal(t, WarrantyActive, WarrantyStatus(NewDate(2027, 1, 1), now))
}

func TestTicketCompleted(t *testing.T) {
	for status, want := range map[string]bool{"open": false, "in_progress": false, "resolved": true, "closed": true} {
		assert.Equal(t, want, Ticket{Status: status}.Completed(), status)
	}
}

func TestRoles(t *testing.T) {
	assert.True(t, ValidateRoles([]string{RoleOrgAdmin, RoleTechnician}))
	assert.False(t, ValidateRoles([]string{"project_admin"}))
	assert.False(t, ValidateRoles(nil))
	assert.Len(t, RoleCatalog, len(ValidRoles))

	first, last := "Ada", "Lovelace"
	u := User{Email: "ada@example.com", PasswordHash: "hash", FirstName: &first, LastName: &last}
	assert.Equal(t, "Ada Lovelace", u.DisplayName())
	assert.Empty(t, u.Redacted().PasswordHash)
	assert.Equal(t, "ada@example.com", (&User{Email: "ada@example.com"}).DisplayName())
}
