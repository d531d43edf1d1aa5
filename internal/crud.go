package internal

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"itam-api/internal/auth"
)

// rowQuerier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// refNames labels the org-scoped tables a write may point into.
var refNames = map[string]string{
	"asset_models":     "asset model",
	"asset_categories": "category",
	"cost_centers":     "cost center",
	"departments":      "department",
	"locations":        "location",
}

// unknownRefError is an id that is not a row of the caller's org.
type unknownRefError struct {
	table string
	id    int64
}

func (e *unknownRefError) Error() string {
	return fmt.Sprintf("%s %d does not exist", refNames[e.table], e.id)
}

func (e *unknownRefError) Is(target error) bool { return target == errUnknownReference }

// refInOrg reports errUnknownReference unless id is a row of table owned by
// orgID. Foreign keys only check the id, so every write taking a reference
// from a request goes through here. table is always a constant.
func refInOrg(ctx context.Context, q rowQuerier, table string, orgID, id int64) error {
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND org_id = $2)`, id, orgID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return &unknownRefError{table: table, id: id}
	}
	return nil
}

// orgRef is an optional reference id and the table it points into.
type orgRef struct {
	table string
	id    *int64
}

// checkRefs runs refInOrg for every set reference, in order.
func checkRefs(ctx context.Context, q rowQuerier, orgID int64, refs ...orgRef) error {
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		if err := refInOrg(ctx, q, ref.table, orgID, *ref.id); err != nil {
			return err
		}
	}
	return nil
}

// requireAffected turns a zero-row update or delete into errNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}

// nullIfBlank maps nil and whitespace-only strings to NULL.
func nullIfBlank(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// deleteOwned deletes row id of an org-scoped table and answers 204.
// table is always a constant from the caller.
func (s *Server) deleteOwned(w http.ResponseWriter, r *http.Request, table string, id int64, what string) {
	ctx := r.Context()
	res, err := s.db(ctx).ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = $1 AND org_id = $2`, id, auth.OrgIDFromContext(ctx))
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, what)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
