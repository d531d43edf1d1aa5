package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itam-api/internal/models"
)

func TestTicketFilter(t *testing.T) {
	r := httptest.NewRequest("GET", "/tickets?view=open&priority=high", nil)
	sql, args, err := ticketFilter(r, 1, "fan").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "t.status NOT IN (?,?)")
	assert.Contains(t, sql, "t.title ILIKE ? OR a.asset_tag ILIKE ?")
	assert.Equal(t, []interface{}{int64(1), "resolved", "closed", "high", "%fan%", "%fan%"}, args)

	r = httptest.NewRequest("GET", "/tickets?view=completed&asset_id=4", nil)
	sql, args, err = ticketFilter(r, 2, "").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "t.status IN (?,?)")
	assert.Equal(t, []interface{}{int64(2), "resolved", "closed", int64(4)}, args)
}

func TestCreateTicketDefaults(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now()
	ts.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM assets`).WithArgs(int64(42), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ts.mock.ExpectQuery(`INSERT INTO tickets`).
		WithArgs(int64(1), int64(42), "Fan is loud", nil, "open", "medium", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	ts.mock.ExpectQuery(`FROM tickets t LEFT JOIN assets a`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "asset_id", "name", "asset_tag", "title",
			"description", "status", "priority", "created_by", "created_at", "updated_at"}).
			AddRow(int64(8), int64(1), int64(42), "Latitude 5440", "LAT5440-4", "Fan is loud",
				nil, "open", "medium", int64(1), now, now))

	assetID := int64(42)
	w := ts.do(t, http.MethodPost, "/tickets",
		models.CreateTicketRequest{AssetID: &assetID, Title: "  Fan is loud "}, models.RoleTechnician)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"asset_tag":"LAT5440-4"`)
}

func TestCreateTicketUnknownAsset(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM assets`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	assetID := int64(42)
	w := ts.do(t, http.MethodPost, "/tickets",
		models.CreateTicketRequest{AssetID: &assetID, Title: "Broken"}, models.RoleOrgAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(t, w))
}

func TestAddTicketUpdateTouchesTicket(t *testing.T) {
	ts := newTestServer(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := ts.mock
	m.ExpectBegin()
	m.ExpectExec(`UPDATE tickets SET updated_at = now\(\) WHERE id = \$1 AND org_id = \$2`).
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectQuery(`INSERT INTO ticket_updates \(ticket_id, note, author_id\)`).
		WithArgs(int64(7), "Replaced fan", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(30), now))
	m.ExpectCommit()

	w := ts.do(t, http.MethodPost, "/tickets/7/updates",
		models.TicketUpdateRequest{Note: " Replaced fan "}, models.RoleTechnician)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got models.TicketUpdate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(30), got.ID)
	assert.Equal(t, "Replaced fan", got.Note)
	require.NotNil(t, got.AuthorID)
	assert.Equal(t, int64(1), *got.AuthorID)
}

func TestAddTicketUpdateUnknownTicket(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectBegin()
	ts.mock.ExpectExec(`UPDATE tickets SET updated_at = now\(\)`).
		WithArgs(int64(404), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ts.mock.ExpectRollback()

	w := ts.do(t, http.MethodPost, "/tickets/404/updates",
		models.TicketUpdateRequest{Note: "Anyone?"}, models.RoleTechnician)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
