package internal

import (
	"net/http"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const departmentColumns = `id, org_id, name, code, people_count, asset_count, created_at, updated_at`

func scanDepartment(row rowScanner) (*models.Department, error) {
	var d models.Department
	err := row.Scan(&d.ID, &d.OrgID, &d.Name, &d.Code, &d.PeopleCount, &d.AssetCount, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (s *Server) listDepartments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := sq.And{sq.Eq{"org_id": auth.OrgIDFromContext(ctx)}}
	if p.q != "" {
		where = append(where, sq.Or{sq.ILike{"name": likePattern(p.q)}, sq.ILike{"code": likePattern(p.q)}})
	}

	var total int
	countSQL, countArgs, _ := psql.Select("COUNT(*)").From("v_departments_with_counts").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Departments")
		return
	}

	order := orderBy(p.sort, map[string]string{
		"id": "id", "name": "name", "people_count": "people_count", "asset_count": "asset_count",
	}, "name ASC")
	query, args, _ := page(psql.Select(departmentColumns).From("v_departments_with_counts").Where(where).OrderBy(order...), p).ToSql()
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Departments")
		return
	}
	defer rows.Close()

	var out []models.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			s.writeDBError(w, r, err, "Departments")
			return
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Departments")
		return
	}
	sendListResponse(w, out, p, total)
}

func (s *Server) loadDepartment(r *http.Request, id int64) (*models.Department, error) {
	ctx := r.Context()
	return scanDepartment(s.db(ctx).QueryRowContext(ctx,
		`SELECT `+departmentColumns+` FROM v_departments_with_counts WHERE id = $1 AND org_id = $2`,
		id, auth.OrgIDFromContext(ctx)))
}

func (s *Server) getDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := s.loadDepartment(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Department")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) createDepartment(w http.ResponseWriter, r *http.Request) {
	var req models.DepartmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	var id int64
	err := s.db(ctx).QueryRowContext(ctx,
		`INSERT INTO departments (org_id, name, code) VALUES ($1, $2, $3) RETURNING id`,
		auth.OrgIDFromContext(ctx), req.Name, nullIfBlank(req.Code)).Scan(&id)
	if err != nil {
		s.writeDBError(w, r, err, "Department")
		return
	}
	d, err := s.loadDepartment(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Department")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) updateDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.DepartmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := s.db(ctx).ExecContext(ctx,
		`UPDATE departments SET name = $1, code = $2, updated_at = now() WHERE id = $3 AND org_id = $4`,
		req.Name, nullIfBlank(req.Code), id, auth.OrgIDFromContext(ctx))
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Department")
		return
	}
	d, err := s.loadDepartment(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Department")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// deleteDepartment refuses while people or assets still reference it.
func (s *Server) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := s.loadDepartment(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Department")
		return
	}
	if d.PeopleCount > 0 || d.AssetCount > 0 {
		writeError(w, http.StatusConflict, "IN_USE", "Department still has people or assets")
		return
	}
	s.deleteOwned(w, r, "departments", id, "Department")
}
