package internal

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"itam-api/internal/auth"
	"itam-api/pkg/exporter"
)

// maxExportRows bounds a single export.
const maxExportRows = 50000

// exportAssets streams the filtered asset list as an xlsx workbook. It takes
// the same filters and sort as the list endpoint but ignores paging.
func (s *Server) exportAssets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := assetFilter(r, auth.OrgIDFromContext(ctx), p.q)
	order := orderBy(p.sort, assetSortColumns, "purchase_date DESC NULLS LAST", "id DESC")

	assets, err := s.queryAssets(ctx, where, order, &listParams{limit: maxExportRows})
	if err != nil {
		s.writeDBError(w, r, err, "Assets")
		return
	}

	var buf bytes.Buffer
	if err := exporter.WriteAssets(&buf, assets); err != nil {
		s.Log.Error("asset export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Failed to build export")
		return
	}

	name := fmt.Sprintf("assets_%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", exporter.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
