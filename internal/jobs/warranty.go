package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	listOrgsQuery = `SELECT id FROM organizations ORDER BY id`

	// scopeOrgQuery makes the row-level policies see one tenant for the
	// rest of the transaction.
	scopeOrgQuery = `SELECT set_config('app.current_org_id', $1, true)`

	expireWarrantiesQuery = `
UPDATE warranties
SET status = 'Expired', updated_at = NOW()
WHERE status = 'Active' AND end_date < $1 AND org_id = $2`
)

// WarrantySweep flips Active warranties whose end date has passed to Expired.
// It works one organization at a time with app.current_org_id set, so it
// behaves the same whether or not the connecting role bypasses RLS.
type WarrantySweep struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

func NewWarrantySweep(db *sql.DB, log *zap.Logger) *WarrantySweep {
	return &WarrantySweep{db: db, log: log, now: time.Now}
}

// Run expires warranties in every organization and returns the total count.
// A failing organization does not stop the others; its error is returned
// with the rest.
func (w *WarrantySweep) Run(ctx context.Context) (int64, error) {
	today := w.now().UTC().Format("2006-01-02")
	orgs, err := w.orgIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list organizations: %w", err)
	}

	var (
		total int64
		errs  []error
	)
	for _, orgID := range orgs {
		n, err := w.expireOrg(ctx, orgID, today)
		if err != nil {
			w.log.Error("warranty sweep failed", zap.Int64("org_id", orgID), zap.Error(err))
			errs = append(errs, fmt.Errorf("expire warranties for org %d: %w", orgID, err))
			continue
		}
		total += n
	}
	w.log.Info("warranty sweep", zap.Int64("expired", total), zap.Int("orgs", len(orgs)), zap.String("as_of", today))
	return total, errors.Join(errs...)
}

func (w *WarrantySweep) orgIDs(ctx context.Context) ([]int64, error) {
	rows, err := w.db.QueryContext(ctx, listOrgsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (w *WarrantySweep) expireOrg(ctx context.Context, orgID int64, today string) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, scopeOrgQuery, strconv.FormatInt(orgID, 10)); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, expireWarrantiesQuery, today, orgID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// Task adapts Run to the scheduler.
func (w *WarrantySweep) Task() Task {
	return func(ctx context.Context) error {
		_, err := w.Run(ctx)
		return err
	}
}
