package internal

import (
	"net/http"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

// lookupTable describes one of the simple name/code reference tables.
type lookupTable struct {
	path  string
	table string
	what  string
}

var lookupTables = []lookupTable{
	{path: "/categories", table: "asset_categories", what: "Category"},
	{path: "/cost-centers", table: "cost_centers", what: "Cost center"},
	{path: "/locations", table: "locations", what: "Location"},
}

const lookupColumns = `id, org_id, name, code, created_at, updated_at`

func scanLookup(row rowScanner) (*models.Lookup, error) {
	var l models.Lookup
	err := row.Scan(&l.ID, &l.OrgID, &l.Name, &l.Code, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (s *Server) listLookups(lt lookupTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p := parseListParams(r)
		where := sq.And{sq.Eq{"org_id": auth.OrgIDFromContext(ctx)}}
		if p.q != "" {
			where = append(where, sq.Or{sq.ILike{"name": likePattern(p.q)}, sq.ILike{"code": likePattern(p.q)}})
		}

		var total int
		countSQL, countArgs, _ := psql.Select("COUNT(*)").From(lt.table).Where(where).ToSql()
		if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			s.writeDBError(w, r, err, lt.what)
			return
		}

		order := orderBy(p.sort, map[string]string{"id": "id", "name": "name", "code": "code"}, "name ASC")
		query, args, _ := page(psql.Select(lookupColumns).From(lt.table).Where(where).OrderBy(order...), p).ToSql()
		rows, err := s.db(ctx).QueryContext(ctx, query, args...)
		if err != nil {
			s.writeDBError(w, r, err, lt.what)
			return
		}
		defer rows.Close()

		var out []models.Lookup
		for rows.Next() {
			l, err := scanLookup(rows)
			if err != nil {
				s.writeDBError(w, r, err, lt.what)
				return
			}
			out = append(out, *l)
		}
		if err := rows.Err(); err != nil {
			s.writeDBError(w, r, err, lt.what)
			return
		}
		sendListResponse(w, out, p, total)
	}
}

func (s *Server) getLookup(lt lookupTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		ctx := r.Context()
		l, err := scanLookup(s.db(ctx).QueryRowContext(ctx,
			`SELECT `+lookupColumns+` FROM `+lt.table+` WHERE id = $1 AND org_id = $2`,
			id, auth.OrgIDFromContext(ctx)))
		if err != nil {
			s.writeDBError(w, r, err, lt.what)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func (s *Server) createLookup(lt lookupTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LookupRequest
		if !s.decode(w, r, &req) {
			return
		}
		ctx := r.Context()
		l, err := scanLookup(s.db(ctx).QueryRowContext(ctx,
			`INSERT INTO `+lt.table+` (org_id, name, code) VALUES ($1, $2, $3) RETURNING `+lookupColumns,
			auth.OrgIDFromContext(ctx), req.Name, nullIfBlank(req.Code)))
		if err != nil {
			s.writeDBError(w, r, err, lt.what)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

func (s *Server) updateLookup(lt lookupTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req models.LookupRequest
		if !s.decode(w, r, &req) {
			return
		}
		ctx := r.Context()
		l, err := scanLookup(s.db(ctx).QueryRowContext(ctx,
			`UPDATE `+lt.table+` SET name = $1, code = $2, updated_at = now()
			WHERE id = $3 AND org_id = $4 RETURNING `+lookupColumns,
			req.Name, nullIfBlank(req.Code), id, auth.OrgIDFromContext(ctx)))
		if err != nil {
			s.writeDBError(w, r, err, lt.what)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func (s *Server) deleteLookup(lt lookupTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		s.deleteOwned(w, r, lt.table, id, lt.what)
	}
}
