// Package assettag allocates sequential SKU-N asset tags.
//
// Tags are per organization and per SKU. The first asset of a SKU gets
// suffix 0; later ones get one more than the highest numeric suffix in use,
// so deleted assets never cause a tag to be handed out twice while a higher
// tag still exists.
package assettag

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LockQuery serializes allocation for one (org, sku) pair until the
// surrounding transaction ends.
const LockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

// NextQuery returns the next free suffix for the tag pattern in $2.
const NextQuery = `
SELECT COALESCE(MAX(substring(asset_tag FROM '([0-9]+)$')::bigint) + 1, 0)
FROM assets
WHERE org_id = $1 AND asset_tag ~ $2`

// Querier is satisfied by *sql.Tx. Next must run inside a transaction for
// the advisory lock to hold until the insert commits.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Format builds the tag for sku and suffix n.
func Format(sku string, n int64) string {
	return sku + "-" + strconv.FormatInt(n, 10)
}

// Pattern is the POSIX regex matching every tag of sku.
func Pattern(sku string) string {
	return "^" + regexp.QuoteMeta(sku) + "-[0-9]+$"
}

// LockKey identifies the advisory lock for an (org, sku) pair.
func LockKey(orgID int64, sku string) string {
	return strconv.FormatInt(orgID, 10) + ":" + sku
}

// Next locks (org, sku) and returns the next tag. A blank sku yields ""
// and no error: models without a SKU produce untagged assets.
func Next(ctx context.Context, q Querier, orgID int64, sku string) (string, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return "", nil
	}
	if _, err := q.ExecContext(ctx, LockQuery, LockKey(orgID, sku)); err != nil {
		return "", fmt.Errorf("lock tag sequence %s: %w", sku, err)
	}
	var n int64
	if err := q.QueryRowContext(ctx, NextQuery, orgID, Pattern(sku)).Scan(&n); err != nil {
		return "", fmt.Errorf("next tag for %s: %w", sku, err)
	}
	return Format(sku, n), nil
}
