package internal

import (
	"context"
	"net/http"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

// countBy runs a two-column "key, count" select into a map.
func (s *Server) countBy(ctx context.Context, b sq.SelectBuilder) (map[string]int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	d := models.Dashboard{}

	var err error
	d.AssetsByState, err = s.countBy(ctx, psql.Select("state", "COUNT(*)").From("assets").
		Where(sq.Eq{"org_id": orgID}).GroupBy("state"))
	if err != nil {
		s.writeDBError(w, r, err, "Dashboard")
		return
	}
	for _, n := range d.AssetsByState {
		d.TotalAssets += n
	}

	d.OpenTicketsBy, err = s.countBy(ctx, psql.Select("priority", "COUNT(*)").From("tickets").
		Where(sq.And{sq.Eq{"org_id": orgID}, sq.NotEq{"status": []string{"resolved", "closed"}}}).GroupBy("priority"))
	if err != nil {
		s.writeDBError(w, r, err, "Dashboard")
		return
	}

	scalars := []struct {
		dst *int
		b   sq.SelectBuilder
	}{
		{&d.LicensesAvailable, psql.Select("COALESCE(SUM(count_available), 0)").From("software_titles").
			Where(sq.Eq{"org_id": orgID})},
		{&d.LicensesUtilized, psql.Select("COALESCE(SUM(count_utilized), 0)").From("software_titles").
			Where(sq.Eq{"org_id": orgID})},
		{&d.WarrantiesExpiring, psql.Select("COUNT(*)").From("warranties").
			Where(sq.Eq{"org_id": orgID, "status": models.WarrantyActive}).
			Where("end_date BETWEEN CURRENT_DATE AND CURRENT_DATE + 30")},
		{&d.PendingPurchaseOrder, psql.Select("COUNT(*)").From("purchase_orders").
			Where(sq.Eq{"org_id": orgID, "status": models.POPending})},
	}
	for _, sc := range scalars {
		query, args, _ := sc.b.ToSql()
		if err := s.db(ctx).QueryRowContext(ctx, query, args...).Scan(sc.dst); err != nil {
			s.writeDBError(w, r, err, "Dashboard")
			return
		}
	}
	writeJSON(w, http.StatusOK, d)
}
