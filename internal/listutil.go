package internal

import (
	"net/http"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// psql builds statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type listParams struct {
	limit  int
	offset int
	q      string
	sort   string
}

// parseListParams reads limit (default 50, capped at 200), offset, q and sort.
func parseListParams(r *http.Request) listParams {
	values := r.URL.Query()

	limit := defaultLimit
	if v, err := strconv.Atoi(strings.TrimSpace(values.Get("limit"))); err == nil && v > 0 {
		limit = min(v, maxLimit)
	}

	offset := 0
	if v, err := strconv.Atoi(strings.TrimSpace(values.Get("offset"))); err == nil && v >= 0 {
		offset = v
	}

	return listParams{
		limit:  limit,
		offset: offset,
		q:      strings.TrimSpace(values.Get("q")),
		sort:   strings.TrimSpace(values.Get("sort")),
	}
}

// likePattern wraps q for a case-insensitive substring match, escaping LIKE wildcards.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// queryInt64 returns the positive integer query parameter name, if present.
func queryInt64(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(name)), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// orderBy turns a comma separated sort parameter into ORDER BY terms using
// only whitelisted columns. A leading '-' sorts descending. fallback is used
// when nothing usable was asked for.
func orderBy(sortParam string, allowed map[string]string, fallback ...string) []string {
	var terms []string
	for _, raw := range strings.Split(sortParam, ",") {
		key := strings.TrimSpace(raw)
		dir := " ASC"
		if strings.HasPrefix(key, "-") {
			key, dir = key[1:], " DESC"
		}
		if col, ok := allowed[key]; ok {
			terms = append(terms, col+dir)
		}
	}
	if len(terms) == 0 {
		return fallback
	}
	return terms
}

// page applies the list window to a select.
func page(b sq.SelectBuilder, p listParams) sq.SelectBuilder {
	return b.Limit(uint64(p.limit)).Offset(uint64(p.offset))
}
