package internal

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

// openAssignment closes any open assignment of the asset and opens one for
// personID. The person must be active and in orgID.
func openAssignment(ctx context.Context, tx *sql.Tx, orgID, assetID, personID int64) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM people WHERE id = $1 AND org_id = $2 AND is_active)`,
		personID, orgID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return errUnknownPerson
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE asset_assignments SET returned_at = now() WHERE asset_id = $1 AND returned_at IS NULL`,
		assetID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO asset_assignments (asset_id, type, person_id) VALUES ($1, 'user', $2)`,
		assetID, personID)
	return err
}

// assetInOrg locks the asset row for the transaction and checks ownership.
func assetInOrg(ctx context.Context, tx *sql.Tx, orgID, assetID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM assets WHERE id = $1 AND org_id = $2 FOR UPDATE`, assetID, orgID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	return err
}

func (s *Server) listAssetAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	rows, err := s.db(ctx).QueryContext(ctx, `
		SELECT aa.id, aa.asset_id, aa.type, aa.person_id, p.first_name || ' ' || p.last_name, p.email,
		       aa.assigned_at, aa.returned_at
		FROM asset_assignments aa
		JOIN assets a ON a.id = aa.asset_id
		JOIN people p ON p.id = aa.person_id
		WHERE aa.asset_id = $1 AND a.org_id = $2
		ORDER BY aa.assigned_at DESC`, id, auth.OrgIDFromContext(ctx))
	if err != nil {
		s.writeDBError(w, r, err, "Assignments")
		return
	}
	defer rows.Close()

	out := []models.AssetAssignment{}
	for rows.Next() {
		var a models.AssetAssignment
		if err := rows.Scan(&a.ID, &a.AssetID, &a.Type, &a.PersonID, &a.PersonName, &a.Email,
			&a.AssignedAt, &a.ReturnedAt); err != nil {
			s.writeDBError(w, r, err, "Assignments")
			return
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Assignments")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// assignAsset hands the asset to a person and re-publishes its QR code so
// the printed label matches the new holder.
func (s *Server) assignAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AssignAssetRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := assetInOrg(ctx, tx, orgID, id); err != nil {
			return err
		}
		return openAssignment(ctx, tx, orgID, id, req.PersonID)
	})
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	s.respondAfterAssignment(w, r, orgID, id)
}

// returnAsset closes the open assignment. 409 when the asset is not out.
func (s *Server) returnAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	var returned int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := assetInOrg(ctx, tx, orgID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE asset_assignments SET returned_at = now() WHERE asset_id = $1 AND returned_at IS NULL`, id)
		if err != nil {
			return err
		}
		returned, err = res.RowsAffected()
		return err
	})
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	if returned == 0 {
		writeError(w, http.StatusConflict, "NOT_ASSIGNED", "Asset is not currently assigned")
		return
	}
	s.respondAfterAssignment(w, r, orgID, id)
}

func (s *Server) respondAfterAssignment(w http.ResponseWriter, r *http.Request, orgID, id int64) {
	resp, err := s.publishForResponse(r.Context(), orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
