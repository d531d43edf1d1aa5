package internal

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const purchaseOrderColumns = `po.id, po.org_id, po.po_number, po.vendor, po.order_date, po.status, po.notes,
	COALESCE(SUM(l.quantity), 0), COALESCE(SUM(l.quantity * l.unit_cost), 0)::float8,
	po.received_at, po.created_at, po.updated_at`

var purchaseOrderSortColumns = map[string]string{
	"po_number":  "po.po_number",
	"vendor":     "po.vendor",
	"order_date": "po.order_date",
	"status":     "po.status",
	"created_at": "po.created_at",
}

func scanPurchaseOrder(row rowScanner) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := row.Scan(&po.ID, &po.OrgID, &po.PONumber, &po.Vendor, &po.OrderDate, &po.Status, &po.Notes,
		&po.ItemCount, &po.Total, &po.ReceivedAt, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func purchaseOrderSelect() sq.SelectBuilder {
	return psql.Select(purchaseOrderColumns).
		From("purchase_orders po").
		LeftJoin("po_lines l ON l.po_id = po.id").
		GroupBy("po.id")
}

func (s *Server) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := sq.And{sq.Eq{"po.org_id": auth.OrgIDFromContext(ctx)}}
	if status := r.URL.Query().Get("status"); status != "" {
		where = append(where, sq.Eq{"po.status": status})
	}
	if vendor := strings.TrimSpace(r.URL.Query().Get("vendor")); vendor != "" {
		where = append(where, sq.ILike{"po.vendor": likePattern(vendor)})
	}
	if p.q != "" {
		like := likePattern(p.q)
		where = append(where, sq.Or{sq.ILike{"po.po_number": like}, sq.ILike{"po.vendor": like}})
	}

	var total int
	countSQL, countArgs, _ := psql.Select("COUNT(*)").From("purchase_orders po").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Purchase orders")
		return
	}

	query, args, _ := page(purchaseOrderSelect().Where(where).
		OrderBy(orderBy(p.sort, purchaseOrderSortColumns, "po.order_date DESC", "po.id DESC")...), p).ToSql()
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Purchase orders")
		return
	}
	defer rows.Close()

	var orders []models.PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			s.writeDBError(w, r, err, "Purchase orders")
			return
		}
		orders = append(orders, *po)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Purchase orders")
		return
	}
	sendListResponse(w, orders, p, total)
}

// loadPurchaseOrder reads the header with its derived totals and its lines.
func (s *Server) loadPurchaseOrder(ctx context.Context, orgID, id int64) (*models.PurchaseOrder, error) {
	query, args, _ := purchaseOrderSelect().Where(sq.Eq{"po.id": id, "po.org_id": orgID}).ToSql()
	po, err := scanPurchaseOrder(s.db(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	rows, err := s.db(ctx).QueryContext(ctx, `
		SELECT id, po_id, model_id, description, quantity, unit_cost::float8, (quantity * unit_cost)::float8
		FROM po_lines WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	po.Lines = []models.POLine{}
	for rows.Next() {
		var l models.POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.ModelID, &l.Description, &l.Quantity, &l.UnitCost, &l.LineTotal); err != nil {
			return nil, err
		}
		po.Lines = append(po.Lines, l)
	}
	return po, rows.Err()
}

func (s *Server) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := s.loadPurchaseOrder(r.Context(), auth.OrgIDFromContext(r.Context()), id)
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}
	writeJSON(w, http.StatusOK, po)
}

// insertPOLine adds a line after checking its model belongs to the org.
func insertPOLine(ctx context.Context, tx *sql.Tx, orgID, poID int64, l models.POLineRequest) error {
	if l.ModelID != nil {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM asset_models WHERE id = $1 AND org_id = $2)`,
			*l.ModelID, orgID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errUnknownModel
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO po_lines (po_id, model_id, description, quantity, unit_cost)
		VALUES ($1, $2, $3, $4, $5)`,
		poID, l.ModelID, strings.TrimSpace(l.Description), l.Quantity, l.UnitCost)
	return err
}

func (s *Server) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePurchaseOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO purchase_orders (org_id, po_number, vendor, order_date, notes)
			VALUES ($1, $2, $3, COALESCE($4::date, CURRENT_DATE), $5)
			RETURNING id`,
			orgID, strings.TrimSpace(req.PONumber), strings.TrimSpace(req.Vendor), req.OrderDate,
			nullIfBlank(req.Notes)).Scan(&id)
		if err != nil {
			return err
		}
		for _, l := range req.Lines {
			if err := insertPOLine(ctx, tx, orgID, id, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}

	po, err := s.loadPurchaseOrder(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}
	writeJSON(w, http.StatusCreated, po)
}

func (s *Server) updatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.UpdatePurchaseOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)

	b := psql.Update("purchase_orders").Set("updated_at", sq.Expr("now()"))
	if req.Vendor != nil {
		b = b.Set("vendor", strings.TrimSpace(*req.Vendor))
	}
	if req.OrderDate != nil {
		b = b.Set("order_date", *req.OrderDate)
	}
	if req.Notes != nil {
		b = b.Set("notes", nullIfBlank(req.Notes))
	}
	query, args, _ := b.Where(sq.Eq{"id": id, "org_id": orgID}).ToSql()
	res, err := s.db(ctx).ExecContext(ctx, query, args...)
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}

	po, err := s.loadPurchaseOrder(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}
	writeJSON(w, http.StatusOK, po)
}

// lockPurchaseOrder locks the PO row and returns its status and order date.
func lockPurchaseOrder(ctx context.Context, tx *sql.Tx, orgID, id int64) (string, models.Date, error) {
	var (
		status string
		date   models.Date
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, order_date FROM purchase_orders WHERE id = $1 AND org_id = $2 FOR UPDATE`,
		id, orgID).Scan(&status, &date)
	return status, date, err
}

func (s *Server) deletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status, _, err := lockPurchaseOrder(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if status == models.POReceived {
			return errNotPending
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
		return err
	})
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addPurchaseOrderLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.POLineRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status, _, err := lockPurchaseOrder(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if status != models.POPending {
			return errNotPending
		}
		return insertPOLine(ctx, tx, orgID, id, req)
	})
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}

	po, err := s.loadPurchaseOrder(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}
	writeJSON(w, http.StatusCreated, po)
}

type receivableLine struct {
	id       int64
	modelID  int64
	quantity int
	unitCost float64
}

// receivePurchaseOrder marks a pending PO received and books every unit of
// every modelled line into stock as a tagged asset. QR codes are published
// once the transaction has committed.
func (s *Server) receivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)

	var assetIDs []int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status, orderDate, err := lockPurchaseOrder(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if status != models.POPending {
			return errNotPending
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $1, received_at = now(), updated_at = now()
			WHERE id = $2`, models.POReceived, id); err != nil {
			return err
		}

		lines, err := receivableLines(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, l := range lines {
			for i := 0; i < l.quantity; i++ {
				lineID, cost, date := l.id, l.unitCost, orderDate
				assetID, err := createTaggedAsset(ctx, tx, orgID, models.Asset{
					ModelID:      l.modelID,
					POLineID:     &lineID,
					PurchaseDate: &date,
					Cost:         &cost,
					State:        "in_stock",
				})
				if err != nil {
					return fmt.Errorf("line %d: %w", l.id, err)
				}
				assetIDs = append(assetIDs, assetID)
			}
		}
		return nil
	})
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}

	result := models.ReceiveResult{AssetIDs: assetIDs}
	if result.AssetIDs == nil {
		result.AssetIDs = []int64{}
	}
	for _, assetID := range assetIDs {
		if _, err := s.publishQR(ctx, orgID, assetID); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("asset %d qr code: %v", assetID, err))
		}
	}

	po, err := s.loadPurchaseOrder(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}
	result.PurchaseOrder = *po
	writeJSON(w, http.StatusOK, result)
}

// receivableLines reads the lines that carry a model. The rows are drained
// before the caller issues further statements on the transaction.
func receivableLines(ctx context.Context, tx *sql.Tx, poID int64) ([]receivableLine, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, model_id, quantity, unit_cost::float8 FROM po_lines
		WHERE po_id = $1 AND model_id IS NOT NULL ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []receivableLine
	for rows.Next() {
		var l receivableLine
		if err := rows.Scan(&l.id, &l.modelID, &l.quantity, &l.unitCost); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Server) cancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status, _, err := lockPurchaseOrder(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if status != models.POPending {
			return errNotPending
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE purchase_orders SET status = $1, updated_at = now() WHERE id = $2`, models.POCancelled, id)
		return err
	})
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}

	po, err := s.loadPurchaseOrder(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Purchase order")
		return
	}
	writeJSON(w, http.StatusOK, po)
}
