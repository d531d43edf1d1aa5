package internal

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"itam-api/internal/assettag"
	"itam-api/internal/auth"
	"itam-api/internal/models"
)

// assetSortColumns whitelists sort keys for asset lists and exports.
var assetSortColumns = map[string]string{
	"id":            "id",
	"asset_tag":     "asset_tag",
	"serial_number": "serial_number",
	"model":         "model_name",
	"state":         "state",
	"condition":     "condition",
	"department":    "department_name",
	"location":      "location_name",
	"purchase_date": "purchase_date",
	"cost":          "cost",
	"created_at":    "created_at",
}

func scanAssetDetail(row rowScanner) (*models.AssetDetail, error) {
	var a models.AssetDetail
	if err := row.Scan(a.ScanTargets()...); err != nil {
		return nil, err
	}
	return &a, nil
}

// assetFilter builds the WHERE clause shared by the list and export endpoints.
func assetFilter(r *http.Request, orgID int64, q string) sq.And {
	where := sq.And{sq.Eq{"org_id": orgID}}
	if state := r.URL.Query().Get("state"); state != "" {
		where = append(where, sq.Eq{"state": state})
	}
	for _, f := range []struct{ param, col string }{
		{"department_id", "department_id"},
		{"location_id", "location_id"},
		{"category_id", "category_id"},
		{"model_id", "model_id"},
		{"person_id", "assigned_person_id"},
	} {
		if v, ok := queryInt64(r, f.param); ok {
			where = append(where, sq.Eq{f.col: v})
		}
	}
	if q != "" {
		like := likePattern(q)
		where = append(where, sq.Or{
			sq.ILike{"asset_tag": like}, sq.ILike{"serial_number": like}, sq.ILike{"model_name": like},
		})
	}
	return where
}

func (s *Server) queryAssets(ctx context.Context, where sq.And, order []string, p *listParams) ([]models.AssetDetail, error) {
	b := psql.Select(models.AssetDetailColumns).From("v_assets_detailed").Where(where).OrderBy(order...)
	if p != nil {
		b = page(b, *p)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AssetDetail
	for rows.Next() {
		a, err := scanAssetDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := assetFilter(r, auth.OrgIDFromContext(ctx), p.q)

	var total int
	countSQL, countArgs, _ := psql.Select("COUNT(*)").From("v_assets_detailed").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Assets")
		return
	}

	order := orderBy(p.sort, assetSortColumns, "purchase_date DESC NULLS LAST", "id DESC")
	assets, err := s.queryAssets(ctx, where, order, &p)
	if err != nil {
		s.writeDBError(w, r, err, "Assets")
		return
	}
	sendListResponse(w, assets, p, total)
}

func (s *Server) loadAssetDetail(ctx context.Context, orgID, id int64) (*models.AssetDetail, error) {
	return scanAssetDetail(s.db(ctx).QueryRowContext(ctx,
		`SELECT `+models.AssetDetailColumns+` FROM v_assets_detailed WHERE id = $1 AND org_id = $2`, id, orgID))
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := s.loadAssetDetail(r.Context(), auth.OrgIDFromContext(r.Context()), id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) getAssetByTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tag := strings.TrimSpace(chi.URLParam(r, "tag"))
	a, err := scanAssetDetail(s.db(ctx).QueryRowContext(ctx,
		`SELECT `+models.AssetDetailColumns+` FROM v_assets_detailed WHERE org_id = $1 AND asset_tag = $2`,
		auth.OrgIDFromContext(ctx), tag))
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// insertAsset writes one asset row, filling the documented defaults.
func insertAsset(ctx context.Context, tx *sql.Tx, orgID int64, a models.Asset) (int64, error) {
	if a.Currency == "" {
		a.Currency = models.DefaultCurrency
	}
	if a.State == "" {
		a.State = models.DefaultAssetState
	}
	if a.Condition == "" {
		a.Condition = models.DefaultAssetCondition
	}
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO assets (org_id, model_id, cost_center_id, department_id, location_id, po_line_id,
			asset_tag, serial_number, purchase_date, cost, currency, notes, state, condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		orgID, a.ModelID, a.CostCenterID, a.DepartmentID, a.LocationID, a.POLineID,
		a.AssetTag, a.SerialNumber, a.PurchaseDate, a.Cost, a.Currency, a.Notes, a.State, a.Condition,
	).Scan(&id)
	return id, err
}

// createTaggedAsset allocates the next tag for the asset's model and inserts
// it. Serial defaults to the tag. Runs inside the caller's transaction.
func createTaggedAsset(ctx context.Context, tx *sql.Tx, orgID int64, a models.Asset) (int64, error) {
	var sku sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT sku FROM asset_models WHERE id = $1 AND org_id = $2`, a.ModelID, orgID).Scan(&sku)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errUnknownModel
	}
	if err != nil {
		return 0, err
	}

	tag, err := assettag.Next(ctx, tx, orgID, sku.String)
	if err != nil {
		return 0, err
	}
	if tag != "" {
		a.AssetTag = &tag
		if a.SerialNumber == nil {
			a.SerialNumber = &tag
		}
	}
	return insertAsset(ctx, tx, orgID, a)
}

// createAsset runs the tag workflow: allocate the tag, insert, optionally
// assign, commit, then publish the QR code. A QR failure leaves the asset
// in place and is reported in warnings.
func (s *Server) createAsset(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAssetRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)

	asset := models.Asset{
		ModelID:      req.ModelID,
		CostCenterID: req.CostCenterID,
		DepartmentID: req.DepartmentID,
		LocationID:   req.LocationID,
		SerialNumber: nullIfBlank(req.SerialNumber),
		PurchaseDate: req.PurchaseDate,
		Cost:         req.Cost,
		Notes:        nullIfBlank(req.Notes),
	}
	if req.Currency != nil {
		asset.Currency = strings.ToUpper(*req.Currency)
	}
	if req.State != nil {
		asset.State = *req.State
	}
	if req.Condition != nil {
		asset.Condition = *req.Condition
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkRefs(ctx, tx, orgID, assetRefs(nil, req.CostCenterID, req.DepartmentID, req.LocationID)...); err != nil {
			return err
		}
		var err error
		if id, err = createTaggedAsset(ctx, tx, orgID, asset); err != nil {
			return err
		}
		if req.PersonID != nil {
			return openAssignment(ctx, tx, orgID, id, *req.PersonID)
		}
		return nil
	})
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}

	resp, err := s.publishForResponse(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// assetRefs lists the org-scoped references an asset write may carry.
func assetRefs(modelID, costCenterID, departmentID, locationID *int64) []orgRef {
	return []orgRef{
		{table: "asset_models", id: modelID},
		{table: "cost_centers", id: costCenterID},
		{table: "departments", id: departmentID},
		{table: "locations", id: locationID},
	}
}

// publishForResponse publishes the QR code and returns the detail row for
// the reply. A publish failure becomes a warning; the row publishQR already
// loaded is reused when it has one.
func (s *Server) publishForResponse(ctx context.Context, orgID, id int64) (models.CreateAssetResponse, error) {
	resp := models.CreateAssetResponse{}
	detail, err := s.publishQR(ctx, orgID, id)
	if err != nil {
		resp.Warnings = append(resp.Warnings, "qr code: "+err.Error())
	}
	if detail == nil {
		if detail, err = s.loadAssetDetail(ctx, orgID, id); err != nil {
			return resp, err
		}
	}
	resp.AssetDetail = *detail
	return resp, nil
}

// qrFieldsChanged reports whether an update touches anything in the QR
// payload. The serial number stands in for the tag on untagged assets.
func qrFieldsChanged(req models.UpdateAssetRequest) bool {
	return req.ModelID != nil || req.State != nil || req.Condition != nil || req.LocationID != nil ||
		req.SerialNumber != nil
}

func (s *Server) updateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.UpdateAssetRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	refs := assetRefs(req.ModelID, req.CostCenterID, req.DepartmentID, req.LocationID)
	if err := checkRefs(ctx, s.db(ctx), orgID, refs...); err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}

	b := psql.Update("assets").Set("updated_at", sq.Expr("now()"))
	set := func(col string, v any) { b = b.Set(col, v) }
	if req.ModelID != nil {
		set("model_id", *req.ModelID)
	}
	if req.CostCenterID != nil {
		set("cost_center_id", *req.CostCenterID)
	}
	if req.DepartmentID != nil {
		set("department_id", *req.DepartmentID)
	}
	if req.LocationID != nil {
		set("location_id", *req.LocationID)
	}
	if req.SerialNumber != nil {
		set("serial_number", nullIfBlank(req.SerialNumber))
	}
	if req.PurchaseDate != nil {
		set("purchase_date", *req.PurchaseDate)
	}
	if req.Cost != nil {
		set("cost", *req.Cost)
	}
	if req.Currency != nil {
		set("currency", strings.ToUpper(*req.Currency))
	}
	if req.Notes != nil {
		set("notes", nullIfBlank(req.Notes))
	}
	if req.State != nil {
		set("state", *req.State)
	}
	if req.Condition != nil {
		set("condition", *req.Condition)
	}

	query, args, _ := b.Where(sq.Eq{"id": id, "org_id": orgID}).ToSql()
	res, err := s.db(ctx).ExecContext(ctx, query, args...)
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}

	if !qrFieldsChanged(req) {
		detail, err := s.loadAssetDetail(ctx, orgID, id)
		if err != nil {
			s.writeDBError(w, r, err, "Asset")
			return
		}
		writeJSON(w, http.StatusOK, models.CreateAssetResponse{AssetDetail: *detail})
		return
	}
	resp, err := s.publishForResponse(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteAsset removes the row, then its stored QR image. Storage cleanup
// failures are logged only.
func (s *Server) deleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	res, err := s.db(ctx).ExecContext(ctx,
		`DELETE FROM assets WHERE id = $1 AND org_id = $2`, id, auth.OrgIDFromContext(ctx))
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	if err := s.Store.Delete(ctx, qrKey(id)); err != nil {
		s.Log.Warn("delete qr object failed", zap.Int64("asset_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
