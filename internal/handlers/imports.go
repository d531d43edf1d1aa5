package handlers

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"itam-api/internal/auth"
	"itam-api/pkg/importer"
)

// ImportsHandler handles Excel import operations
type ImportsHandler struct {
	DB       *pgxpool.Pool
	Log      *zap.Logger
	MaxBytes int64
}

// NewImportsHandler creates a new imports handler
func NewImportsHandler(db *pgxpool.Pool, log *zap.Logger) *ImportsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ImportsHandler{
		DB:       db,
		Log:      log,
		MaxBytes: 20 << 20, // 20 MB
	}
}

// UploadExcel imports an asset register workbook into the caller's org.
// Form fields: file (.xlsx), mapping, dry_run, max_errors.
func (h *ImportsHandler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		auth.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "content-type must be multipart/form-data")
		return
	}
	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid multipart form: "+err.Error())
		return
	}

	mapping := strings.TrimSpace(r.FormValue("mapping"))
	if _, err := importer.LoadMapping(mapping); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "INVALID_MAPPING", err.Error())
		return
	}
	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))
	maxErrors := 50
	if v := r.FormValue("max_errors"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			auth.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "max_errors must be a positive integer")
			return
		}
		maxErrors = n
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		auth.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "file is required: "+err.Error())
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		auth.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "only .xlsx files are accepted")
		return
	}
	if h.DB == nil {
		auth.WriteError(w, http.StatusServiceUnavailable, "IMPORT_UNAVAILABLE", "import database is not configured")
		return
	}

	orgID := auth.OrgIDFromContext(r.Context())
	sum, err := importer.ImportExcel(r.Context(), h.DB, file, importer.ImportOptions{
		OrgID:     orgID,
		Mapping:   mapping,
		DryRun:    dryRun,
		MaxErrors: maxErrors,
	})
	if err != nil {
		h.Log.Warn("excel import failed",
			zap.Int64("org_id", orgID),
			zap.String("file", header.Filename),
			zap.String("batch_id", sum.BatchID),
			zap.Error(err))
		status := http.StatusUnprocessableEntity
		if errors.Is(err, importer.ErrTooManyErrors) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{
			"error": err.Error(),
			"code":  "IMPORT_FAILED",
			"data":  sum,
		})
		return
	}

	h.Log.Info("excel import finished",
		zap.Int64("org_id", orgID),
		zap.String("batch_id", sum.BatchID),
		zap.Bool("dry_run", sum.DryRun),
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.Updated),
		zap.Int("errors", sum.Errors))
	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"file":      header.Filename,
		},
	})
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	return strings.HasSuffix(strings.ToLower(h.Filename), ".xlsx")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
