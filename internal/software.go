package internal

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const softwareColumns = `id, org_id, name, publisher, count_available, count_utilized, remaining, created_at, updated_at`

var softwareSortColumns = map[string]string{
	"name":      "name",
	"publisher": "publisher",
	"remaining": "remaining",
	"created":   "created_at",
}

func scanSoftware(row rowScanner) (*models.SoftwareTitle, error) {
	var t models.SoftwareTitle
	err := row.Scan(&t.ID, &t.OrgID, &t.Name, &t.Publisher, &t.CountAvailable, &t.CountUtilized,
		&t.Remaining, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) listSoftware(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := sq.And{sq.Eq{"org_id": auth.OrgIDFromContext(ctx)}}
	if p.q != "" {
		like := likePattern(p.q)
		where = append(where, sq.Or{sq.ILike{"name": like}, sq.ILike{"publisher": like}})
	}

	var total int
	countSQL, countArgs, _ := psql.Select("COUNT(*)").From("v_software_titles_summary").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}

	query, args, _ := page(psql.Select(softwareColumns).From("v_software_titles_summary").Where(where).
		OrderBy(orderBy(p.sort, softwareSortColumns, "name ASC")...), p).ToSql()
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	defer rows.Close()

	var titles []models.SoftwareTitle
	for rows.Next() {
		t, err := scanSoftware(rows)
		if err != nil {
			s.writeDBError(w, r, err, "Software")
			return
		}
		titles = append(titles, *t)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	sendListResponse(w, titles, p, total)
}

func (s *Server) loadSoftware(ctx context.Context, q rowQuerier, orgID, id int64) (*models.SoftwareTitle, error) {
	return scanSoftware(q.QueryRowContext(ctx,
		`SELECT `+softwareColumns+` FROM v_software_titles_summary WHERE id = $1 AND org_id = $2`, id, orgID))
}

func (s *Server) getSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	t, err := s.loadSoftware(ctx, s.db(ctx), auth.OrgIDFromContext(ctx), id)
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createSoftware(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSoftwareRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	var id int64
	err := s.db(ctx).QueryRowContext(ctx,
		`INSERT INTO software_titles (org_id, name, publisher) VALUES ($1, $2, $3) RETURNING id`,
		orgID, strings.TrimSpace(req.Name), nullIfBlank(req.Publisher)).Scan(&id)
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	t, err := s.loadSoftware(ctx, s.db(ctx), orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.CreateSoftwareRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	res, err := s.db(ctx).ExecContext(ctx, `
		UPDATE software_titles SET name = $1, publisher = $2, updated_at = now()
		WHERE id = $3 AND org_id = $4`,
		strings.TrimSpace(req.Name), nullIfBlank(req.Publisher), id, orgID)
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	t, err := s.loadSoftware(ctx, s.db(ctx), orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.deleteOwned(w, r, "software_titles", id, "Software")
}

// addLicenses grows the pool of seats for a title.
func (s *Server) addLicenses(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AddLicensesRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	res, err := s.db(ctx).ExecContext(ctx, `
		UPDATE software_titles SET count_available = count_available + $1, updated_at = now()
		WHERE id = $2 AND org_id = $3`, req.Amount, id, orgID)
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	t, err := s.loadSoftware(ctx, s.db(ctx), orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) listSoftwareAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	rows, err := s.db(ctx).QueryContext(ctx, `
		SELECT sa.id, sa.software_id, sa.person_id, p.first_name || ' ' || p.last_name, p.email, sa.assigned_at
		FROM software_assignments sa
		JOIN software_titles st ON st.id = sa.software_id
		JOIN people p ON p.id = sa.person_id
		WHERE sa.software_id = $1 AND st.org_id = $2
		ORDER BY p.last_name, p.first_name`, id, auth.OrgIDFromContext(ctx))
	if err != nil {
		s.writeDBError(w, r, err, "Software assignments")
		return
	}
	defer rows.Close()

	out := []models.SoftwareAssignment{}
	for rows.Next() {
		var a models.SoftwareAssignment
		if err := rows.Scan(&a.ID, &a.SoftwareID, &a.PersonID, &a.PersonName, &a.Email, &a.AssignedAt); err != nil {
			s.writeDBError(w, r, err, "Software assignments")
			return
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Software assignments")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// assignLicense takes one seat for a person. The title row is locked so two
// concurrent assignments cannot both claim the last seat.
func (s *Server) assignLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AssignLicenseRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)

	var a models.SoftwareAssignment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var available, utilized int
		err := tx.QueryRowContext(ctx, `
			SELECT count_available, count_utilized FROM software_titles
			WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).Scan(&available, &utilized)
		if err != nil {
			return err
		}
		if utilized >= available {
			return errNoLicensesAvailable
		}

		err = tx.QueryRowContext(ctx, `
			SELECT first_name || ' ' || last_name, email FROM people
			WHERE id = $1 AND org_id = $2 AND is_active`, req.PersonID, orgID).Scan(&a.PersonName, &a.Email)
		if errors.Is(err, sql.ErrNoRows) {
			return errUnknownPerson
		}
		if err != nil {
			return err
		}

		var held bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM software_assignments WHERE software_id = $1 AND person_id = $2)`,
			id, req.PersonID).Scan(&held); err != nil {
			return err
		}
		if held {
			return errAlreadyAssigned
		}

		if err := tx.QueryRowContext(ctx, `
			INSERT INTO software_assignments (software_id, person_id) VALUES ($1, $2)
			RETURNING id, assigned_at`, id, req.PersonID).Scan(&a.ID, &a.AssignedAt); err != nil {
			if isUniqueViolation(err) {
				return errAlreadyAssigned
			}
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE software_titles SET count_utilized = count_utilized + 1, updated_at = now() WHERE id = $1`, id)
		return err
	})
	if err != nil {
		s.writeDBError(w, r, err, "Software")
		return
	}
	a.SoftwareID = id
	a.PersonID = req.PersonID
	writeJSON(w, http.StatusCreated, a)
}

// revokeLicense frees a seat. The utilized count never drops below zero.
func (s *Server) revokeLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assignmentID, ok := pathID(w, r, "assignmentID")
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var locked int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM software_titles WHERE id = $1 AND org_id = $2 FOR UPDATE`, id, orgID).Scan(&locked); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM software_assignments WHERE id = $1 AND software_id = $2`, assignmentID, id)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE software_titles SET count_utilized = GREATEST(count_utilized - 1, 0), updated_at = now()
			WHERE id = $1`, id)
		return err
	})
	if err != nil {
		s.writeDBError(w, r, err, "Software assignment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
