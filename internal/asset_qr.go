package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"itam-api/internal/auth"
	"itam-api/internal/models"
	"itam-api/internal/qrcode"
)

const maxScanUpload = 10 << 20

// qrKey is the storage key of an asset's QR image.
func qrKey(assetID int64) string {
	return strconv.FormatInt(assetID, 10) + ".png"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// payloadFor captures the asset identity encoded into its QR code. Untagged
// assets are labelled by serial number.
func payloadFor(a *models.AssetDetail) qrcode.Payload {
	tag := deref(a.AssetTag)
	if tag == "" {
		tag = deref(a.SerialNumber)
	}
	return qrcode.Payload{
		ID:            a.ID,
		AssetTag:      tag,
		Model:         a.ModelName,
		Manufacturer:  deref(a.Manufacturer),
		Category:      deref(a.CategoryName),
		State:         a.State,
		Condition:     a.Condition,
		Location:      deref(a.LocationName),
		AssignedTo:    deref(a.AssignedTo),
		AssignedEmail: deref(a.AssignedEmail),
		AssignedDate:  a.AssignedDate,
	}
}

// publishQR renders the asset's current payload, overwrites its stored
// image and records the public URL. It returns the refreshed detail row.
func (s *Server) publishQR(ctx context.Context, orgID, id int64) (*models.AssetDetail, error) {
	a, err := s.loadAssetDetail(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(payloadFor(a), s.Config.QRSize)
	if err != nil {
		s.Metrics.QRFailed("encode")
		s.Log.Warn("qr encode failed", zap.Int64("asset_id", id), zap.Error(err))
		return a, err
	}
	if err := s.Store.Put(ctx, qrKey(id), qrcode.ContentType, png); err != nil {
		s.Metrics.QRFailed("upload")
		s.Log.Warn("qr upload failed", zap.Int64("asset_id", id), zap.Error(err))
		return a, fmt.Errorf("upload failed: %w", err)
	}

	url := s.Store.URL(qrKey(id))
	if _, err := s.db(ctx).ExecContext(ctx,
		`UPDATE assets SET qr_code_url = $1 WHERE id = $2 AND org_id = $3`, url, id, orgID); err != nil {
		s.Metrics.QRFailed("save")
		s.Log.Warn("qr url save failed", zap.Int64("asset_id", id), zap.Error(err))
		return a, fmt.Errorf("save url failed: %w", err)
	}
	a.QRCodeURL = &url
	s.Metrics.QRGenerated()
	return a, nil
}

// regenerateAssetQR re-publishes the QR image on demand.
func (s *Server) regenerateAssetQR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := s.publishQR(r.Context(), auth.OrgIDFromContext(r.Context()), id)
	if err != nil {
		if a == nil {
			s.writeDBError(w, r, err, "Asset")
			return
		}
		writeError(w, http.StatusBadGateway, "QR_PUBLISH_FAILED", "qr code: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"qr_code_url": deref(a.QRCodeURL)})
}

// renderAssetQR streams a freshly rendered PNG without touching storage.
func (s *Server) renderAssetQR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := s.loadAssetDetail(r.Context(), auth.OrgIDFromContext(r.Context()), id)
	if err != nil {
		s.writeDBError(w, r, err, "Asset")
		return
	}
	png, err := qrcode.Encode(payloadFor(a), s.Config.QRSize)
	if err != nil {
		s.Log.Error("qr render failed", zap.Int64("asset_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", qrcode.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

type scanResponse struct {
	Payload qrcode.Payload      `json:"payload"`
	Asset   *models.AssetDetail `json:"asset"`
}

// scanAsset resolves scanned QR content to an asset. The content is either
// the decoded text as JSON or an uploaded image in the "image" form field.
func (s *Server) scanAsset(w http.ResponseWriter, r *http.Request) {
	text, ok := s.scanText(w, r)
	if !ok {
		return
	}

	payload, err := qrcode.ParseText(text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_QR", err.Error())
		return
	}

	resp := scanResponse{Payload: payload}
	a, err := s.loadAssetDetail(r.Context(), auth.OrgIDFromContext(r.Context()), payload.ID)
	switch {
	case err == nil:
		resp.Asset = a
	case !errors.Is(err, sql.ErrNoRows):
		s.writeDBError(w, r, err, "Asset")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) scanText(w http.ResponseWriter, r *http.Request) (string, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req models.ScanRequest
		if !s.decode(w, r, &req) {
			return "", false
		}
		return req.Text, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxScanUpload)
	if err := r.ParseMultipartForm(maxScanUpload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart form: "+err.Error())
		return "", false
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "image file is required")
		return "", false
	}
	defer file.Close()

	text, err := qrcode.DecodeImage(file)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_QR", "No readable QR code in image")
		return "", false
	}
	return text, true
}
