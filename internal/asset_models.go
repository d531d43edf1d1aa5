package internal

import (
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const assetModelSelect = `SELECT m.id, m.org_id, m.category_id, c.name, m.vendor, m.name, m.sku, m.created_at, m.updated_at
	FROM asset_models m LEFT JOIN asset_categories c ON c.id = m.category_id`

func scanAssetModel(row rowScanner) (*models.AssetModel, error) {
	var m models.AssetModel
	err := row.Scan(&m.ID, &m.OrgID, &m.CategoryID, &m.CategoryName, &m.Vendor, &m.Name, &m.SKU, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (s *Server) listAssetModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := sq.And{sq.Eq{"m.org_id": auth.OrgIDFromContext(ctx)}}
	if catID, ok := queryInt64(r, "category_id"); ok {
		where = append(where, sq.Eq{"m.category_id": catID})
	}
	if p.q != "" {
		like := likePattern(p.q)
		where = append(where, sq.Or{sq.ILike{"m.name": like}, sq.ILike{"m.sku": like}, sq.ILike{"m.vendor": like}})
	}

	var total int
	countSQL, countArgs, _ := psql.Select("COUNT(*)").From("asset_models m").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Asset models")
		return
	}

	order := orderBy(p.sort, map[string]string{
		"id": "m.id", "name": "m.name", "sku": "m.sku", "vendor": "m.vendor", "category": "c.name",
	}, "m.name ASC")
	query, args, _ := page(
		psql.Select("m.id, m.org_id, m.category_id, c.name, m.vendor, m.name, m.sku, m.created_at, m.updated_at").
			From("asset_models m").
			LeftJoin("asset_categories c ON c.id = m.category_id").
			Where(where).OrderBy(order...), p).ToSql()
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Asset models")
		return
	}
	defer rows.Close()

	var out []models.AssetModel
	for rows.Next() {
		m, err := scanAssetModel(rows)
		if err != nil {
			s.writeDBError(w, r, err, "Asset models")
			return
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Asset models")
		return
	}
	sendListResponse(w, out, p, total)
}

func (s *Server) loadAssetModel(r *http.Request, q rowQuerier, id int64) (*models.AssetModel, error) {
	return scanAssetModel(q.QueryRowContext(r.Context(),
		assetModelSelect+` WHERE m.id = $1 AND m.org_id = $2`, id, auth.OrgIDFromContext(r.Context())))
}

func (s *Server) getAssetModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := s.loadAssetModel(r, s.db(r.Context()), id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset model")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// createAssetModel stores a trimmed name. A blank SKU is stored as NULL so
// the model yields untagged assets.
func (s *Server) createAssetModel(w http.ResponseWriter, r *http.Request) {
	var req models.AssetModelRequest
	if !s.decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "name is required")
		return
	}
	ctx := r.Context()
	if err := checkRefs(ctx, s.db(ctx), auth.OrgIDFromContext(ctx), orgRef{table: "asset_categories", id: req.CategoryID}); err != nil {
		s.writeDBError(w, r, err, "Asset model")
		return
	}
	var id int64
	err := s.db(ctx).QueryRowContext(ctx, `
		INSERT INTO asset_models (org_id, category_id, vendor, name, sku)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		auth.OrgIDFromContext(ctx), req.CategoryID, nullIfBlank(req.Vendor), name, nullIfBlank(req.SKU)).Scan(&id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset model")
		return
	}
	m, err := s.loadAssetModel(r, s.db(ctx), id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset model")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) updateAssetModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AssetModelRequest
	if !s.decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "name is required")
		return
	}
	ctx := r.Context()
	if err := checkRefs(ctx, s.db(ctx), auth.OrgIDFromContext(ctx), orgRef{table: "asset_categories", id: req.CategoryID}); err != nil {
		s.writeDBError(w, r, err, "Asset model")
		return
	}
	res, err := s.db(ctx).ExecContext(ctx, `
		UPDATE asset_models SET category_id = $1, vendor = $2, name = $3, sku = $4, updated_at = now()
		WHERE id = $5 AND org_id = $6`,
		req.CategoryID, nullIfBlank(req.Vendor), name, nullIfBlank(req.SKU), id, auth.OrgIDFromContext(ctx))
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Asset model")
		return
	}
	m, err := s.loadAssetModel(r, s.db(ctx), id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset model")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) deleteAssetModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.deleteOwned(w, r, "asset_models", id, "Asset model")
}
