// Package importer loads asset registers from Excel workbooks.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tealeg/xlsx/v3"

	"itam-api/internal/assettag"
)

const defaultMaxErrors = 50

// ErrTooManyErrors aborts an import once the error budget is spent. Nothing
// is written in that case.
var ErrTooManyErrors = errors.New("too many errors")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	OrgID     int64
	Mapping   string // embedded mapping name, default "assets"
	DryRun    bool
	MaxErrors int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	BatchID  string         `json:"batch_id"`
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

func (s *ImportSummary) add(sh SheetSummary) {
	s.Sheets = append(s.Sheets, sh)
	s.Inserted += sh.Inserted
	s.Updated += sh.Updated
	s.Skipped += sh.Skipped
	s.Errors += sh.Errors
}

// ImportExcel reads the workbook in r and upserts its assets into the org.
// All rows run in one transaction, each behind its own savepoint so a bad
// row is counted and skipped without losing the others. A dry run does the
// same work and rolls back.
func ImportExcel(ctx context.Context, db *pgxpool.Pool, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		BatchID: uuid.NewString(),
		DryRun:  opts.DryRun,
		Sheets:  []SheetSummary{},
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = defaultMaxErrors
	}

	mapping, err := LoadMapping(opts.Mapping)
	if err != nil {
		return summary, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("read workbook: %w", err)
	}
	wb, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("open workbook: %w", err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org_id', $1, true)`,
		strconv.FormatInt(opts.OrgID, 10)); err != nil {
		return summary, fmt.Errorf("set org context: %w", err)
	}

	w := &writer{tx: tx, orgID: opts.OrgID, refs: map[string]int64{}}
	for _, sheet := range wb.Sheets {
		sm, ok := mapping.Sheets[sheet.Name]
		if !ok {
			continue
		}
		summary.add(w.sheet(ctx, sheet, sm, mapping.Defaults, opts.MaxErrors-summary.Errors))
		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("%w (%d), nothing was imported", ErrTooManyErrors, summary.Errors)
		}
	}

	if opts.DryRun {
		return summary, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit import: %w", err)
	}
	return summary, nil
}

type outcome int

const (
	inserted outcome = iota
	updated
)

// writer applies records to one org inside the import transaction.
type writer struct {
	tx    pgx.Tx
	orgID int64
	refs  map[string]int64 // "<table>:<lower name>" -> id
}

// sheet processes one sheet. It stops early once budget errors are exceeded.
func (w *writer) sheet(ctx context.Context, sheet *xlsx.Sheet, sm SheetMapping, d Defaults, budget int) SheetSummary {
	sum := SheetSummary{Name: sheet.Name}
	fail := func(row int, err error) {
		sum.Errors++
		if len(sum.Samples) < 10 {
			sum.Samples = append(sum.Samples, RowError{Sheet: sheet.Name, Row: row, Message: err.Error()})
		}
	}

	rows, err := readRows(sheet)
	if err != nil {
		fail(1, err)
		return sum
	}
	if len(rows) == 0 {
		return sum
	}
	cols := resolveHeaders(rows[0], sm.Columns)
	if _, ok := cols[FieldModelSKU]; !ok {
		if _, ok := cols[FieldModelName]; !ok {
			fail(1, errors.New("no model or SKU column in header row"))
			return sum
		}
	}

	for i, cells := range rows[1:] {
		rowNum := i + 2
		values := fieldValues(cells, cols)
		if values == nil {
			sum.Skipped++
			continue
		}
		rec, err := parseRecord(values, d)
		if err != nil {
			fail(rowNum, err)
		} else if res, err := w.apply(ctx, rec, sm.NaturalKey); err != nil {
			fail(rowNum, err)
		} else if res == inserted {
			sum.Inserted++
		} else {
			sum.Updated++
		}
		if sum.Errors > budget {
			break
		}
	}
	return sum
}

// apply upserts rec under a savepoint.
func (w *writer) apply(ctx context.Context, rec Record, naturalKey []string) (outcome, error) {
	sp, err := w.tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	res, err := w.upsert(ctx, sp, rec, naturalKey)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, err
	}
	return res, sp.Commit(ctx)
}

func (w *writer) upsert(ctx context.Context, tx pgx.Tx, rec Record, naturalKey []string) (outcome, error) {
	modelID, sku, err := w.model(ctx, tx, rec)
	if err != nil {
		return 0, err
	}
	deptID, err := w.lookup(ctx, tx, "departments", "department", rec.Department)
	if err != nil {
		return 0, err
	}
	locID, err := w.lookup(ctx, tx, "locations", "location", rec.Location)
	if err != nil {
		return 0, err
	}
	ccID, err := w.lookup(ctx, tx, "cost_centers", "cost center", rec.CostCenter)
	if err != nil {
		return 0, err
	}

	existing, err := w.find(ctx, tx, rec, naturalKey)
	if err != nil {
		return 0, err
	}

	fields := map[string]any{"model_id": modelID}
	setIf := func(col string, id *int64) {
		if id != nil {
			fields[col] = *id
		}
	}
	setIf("department_id", deptID)
	setIf("location_id", locID)
	setIf("cost_center_id", ccID)
	if rec.PurchaseDate != nil {
		fields["purchase_date"] = *rec.PurchaseDate
	}
	if rec.Cost != nil {
		fields["cost"] = *rec.Cost
	}
	for col, v := range map[string]string{
		"currency": rec.Currency, "state": rec.State, "condition": rec.Condition, "notes": rec.Notes,
	} {
		if v != "" {
			fields[col] = v
		}
	}

	if existing > 0 {
		if rec.SerialNumber != "" {
			fields["serial_number"] = rec.SerialNumber
		}
		query, args, err := psql.Update("assets").SetMap(fields).Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"id": existing, "org_id": w.orgID}).ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return 0, err
		}
		return updated, nil
	}

	tag := rec.AssetTag
	if tag == "" {
		if tag, err = nextTag(ctx, tx, w.orgID, sku); err != nil {
			return 0, err
		}
	}
	serial := rec.SerialNumber
	if serial == "" {
		serial = tag
	}
	fields["org_id"] = w.orgID
	if tag != "" {
		fields["asset_tag"] = tag
	}
	if serial != "" {
		fields["serial_number"] = serial
	}
	query, args, err := psql.Insert("assets").SetMap(fields).ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return 0, err
	}
	return inserted, nil
}

// nextTag allocates a tag with the same lock and sequence query as the API.
func nextTag(ctx context.Context, tx pgx.Tx, orgID int64, sku string) (string, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return "", nil
	}
	if _, err := tx.Exec(ctx, assettag.LockQuery, assettag.LockKey(orgID, sku)); err != nil {
		return "", fmt.Errorf("lock tag sequence %s: %w", sku, err)
	}
	var n int64
	if err := tx.QueryRow(ctx, assettag.NextQuery, orgID, assettag.Pattern(sku)).Scan(&n); err != nil {
		return "", fmt.Errorf("next tag for %s: %w", sku, err)
	}
	return assettag.Format(sku, n), nil
}

// model resolves the row's model by SKU, then by name.
func (w *writer) model(ctx context.Context, tx pgx.Tx, rec Record) (int64, string, error) {
	var (
		id  int64
		sku *string
		err error
	)
	if rec.ModelSKU != "" {
		err = tx.QueryRow(ctx, `SELECT id, sku FROM asset_models WHERE org_id = $1 AND sku = $2`,
			w.orgID, rec.ModelSKU).Scan(&id, &sku)
	} else {
		err = tx.QueryRow(ctx, `
			SELECT id, sku FROM asset_models WHERE org_id = $1 AND lower(name) = lower($2)
			ORDER BY id LIMIT 1`, w.orgID, rec.ModelName).Scan(&id, &sku)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if rec.ModelSKU != "" {
			return 0, "", fmt.Errorf("unknown model SKU %q", rec.ModelSKU)
		}
		return 0, "", fmt.Errorf("unknown model %q", rec.ModelName)
	}
	if err != nil {
		return 0, "", err
	}
	if sku == nil {
		return id, "", nil
	}
	return id, *sku, nil
}

// lookup resolves a department, location or cost center by name. table is
// always one of the constant names passed by upsert.
func (w *writer) lookup(ctx context.Context, tx pgx.Tx, table, what, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	key := table + ":" + strings.ToLower(name)
	if id, ok := w.refs[key]; ok {
		return &id, nil
	}
	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM `+table+` WHERE org_id = $1 AND lower(name) = lower($2)`, w.orgID, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("unknown %s %q", what, name)
	}
	if err != nil {
		return nil, err
	}
	w.refs[key] = id
	return &id, nil
}

// find returns the id of the asset matching the first usable natural key.
func (w *writer) find(ctx context.Context, tx pgx.Tx, rec Record, naturalKey []string) (int64, error) {
	for _, key := range naturalKey {
		var value string
		switch key {
		case FieldAssetTag:
			value = rec.AssetTag
		case FieldSerialNumber:
			value = rec.SerialNumber
		}
		if value == "" {
			continue
		}
		var id int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM assets WHERE org_id = $1 AND `+key+` = $2 ORDER BY id LIMIT 1`, w.orgID, value).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
	}
	return 0, nil
}
