package internal

import (
	"context"
	"net/http"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const warrantyColumns = `w.id, w.org_id, w.asset_id, a.asset_tag, m.name, w.provider, w.start_date,
	w.end_date, w.status, w.created_at, w.updated_at`

// maxExpiringWithinDays caps the expiring_within window at ten years.
const maxExpiringWithinDays = 3650

var warrantySortColumns = map[string]string{
	"end_date":   "w.end_date",
	"start_date": "w.start_date",
	"provider":   "w.provider",
	"status":     "w.status",
	"asset_tag":  "a.asset_tag",
}

func scanWarranty(row rowScanner) (*models.Warranty, error) {
	var wr models.Warranty
	err := row.Scan(&wr.ID, &wr.OrgID, &wr.AssetID, &wr.AssetTag, &wr.ModelName, &wr.Provider,
		&wr.StartDate, &wr.EndDate, &wr.Status, &wr.CreatedAt, &wr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wr, nil
}

func warrantySelect(cols string) sq.SelectBuilder {
	return psql.Select(cols).
		From("warranties w").
		Join("assets a ON a.id = w.asset_id").
		Join("asset_models m ON m.id = a.model_id")
}

func (s *Server) listWarranties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := sq.And{sq.Eq{"w.org_id": auth.OrgIDFromContext(ctx)}}
	if status := r.URL.Query().Get("status"); status != "" {
		where = append(where, sq.Eq{"w.status": status})
	}
	if days, err := strconv.Atoi(r.URL.Query().Get("expiring_within")); err == nil && days >= 0 {
		days = min(days, maxExpiringWithinDays)
		today := time.Now().UTC().Format(models.DateLayout)
		where = append(where,
			sq.Eq{"w.status": models.WarrantyActive},
			sq.Expr("w.end_date >= ?::date", today),
			sq.Expr("w.end_date <= ?::date + ?::int", today, days))
	}
	if p.q != "" {
		like := likePattern(p.q)
		where = append(where, sq.Or{sq.ILike{"w.provider": like}, sq.ILike{"a.asset_tag": like}})
	}

	var total int
	countSQL, countArgs, _ := warrantySelect("COUNT(*)").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Warranties")
		return
	}

	query, args, _ := page(warrantySelect(warrantyColumns).Where(where).
		OrderBy(orderBy(p.sort, warrantySortColumns, "w.end_date ASC", "w.id ASC")...), p).ToSql()
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Warranties")
		return
	}
	defer rows.Close()

	var out []models.Warranty
	for rows.Next() {
		wr, err := scanWarranty(rows)
		if err != nil {
			s.writeDBError(w, r, err, "Warranties")
			return
		}
		out = append(out, *wr)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Warranties")
		return
	}
	sendListResponse(w, out, p, total)
}

func (s *Server) loadWarranty(ctx context.Context, orgID, id int64) (*models.Warranty, error) {
	query, args, _ := warrantySelect(warrantyColumns).Where(sq.Eq{"w.id": id, "w.org_id": orgID}).ToSql()
	return scanWarranty(s.db(ctx).QueryRowContext(ctx, query, args...))
}

func (s *Server) getWarranty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	wr, err := s.loadWarranty(r.Context(), auth.OrgIDFromContext(r.Context()), id)
	if err != nil {
		s.writeDBError(w, r, err, "Warranty")
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// decodeWarranty reads and validates a warranty body, including the date order.
func (s *Server) decodeWarranty(w http.ResponseWriter, r *http.Request) (models.WarrantyRequest, bool) {
	var req models.WarrantyRequest
	if !s.decode(w, r, &req) {
		return req, false
	}
	if req.StartDate != nil && req.EndDate.Before(req.StartDate.Time) {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "end_date must not be before start_date")
		return req, false
	}
	return req, true
}

func (s *Server) createWarranty(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeWarranty(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	if err := checkAsset(ctx, s.db(ctx), orgID, req.AssetID); err != nil {
		s.writeDBError(w, r, err, "Warranty")
		return
	}

	var id int64
	err := s.db(ctx).QueryRowContext(ctx, `
		INSERT INTO warranties (org_id, asset_id, provider, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		orgID, req.AssetID, nullIfBlank(req.Provider), req.StartDate, *req.EndDate,
		models.WarrantyStatus(*req.EndDate, time.Now().UTC())).Scan(&id)
	if err != nil {
		s.writeDBError(w, r, err, "Warranty")
		return
	}
	wr, err := s.loadWarranty(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Warranty")
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

func (s *Server) updateWarranty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	req, ok := s.decodeWarranty(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	if err := checkAsset(ctx, s.db(ctx), orgID, req.AssetID); err != nil {
		s.writeDBError(w, r, err, "Warranty")
		return
	}

	res, err := s.db(ctx).ExecContext(ctx, `
		UPDATE warranties
		SET asset_id = $1, provider = $2, start_date = $3, end_date = $4, status = $5, updated_at = now()
		WHERE id = $6 AND org_id = $7`,
		req.AssetID, nullIfBlank(req.Provider), req.StartDate, *req.EndDate,
		models.WarrantyStatus(*req.EndDate, time.Now().UTC()), id, orgID)
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Warranty")
		return
	}
	wr, err := s.loadWarranty(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Warranty")
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (s *Server) deleteWarranty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.deleteOwned(w, r, "warranties", id, "Warranty")
}
