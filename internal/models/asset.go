package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Asset states and conditions accepted by the assets table.
var (
	AssetStates     = []string{"in_use", "in_stock", "maintenance", "retired", "lost"}
	AssetConditions = []string{"excellent", "good", "fair", "poor", "broken"}
)

const (
	DefaultAssetState     = "in_use"
	DefaultAssetCondition = "excellent"
	DefaultCurrency       = "USD"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time of day. It marshals as YYYY-MM-DD
// and scans from DATE columns.
type Date struct {
	time.Time
}

func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		d.Time = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into Date", value)
}

// BeforeDay reports whether d falls on an earlier calendar day than t.
func (d Date) BeforeDay(t time.Time) bool {
	y, m, day := t.Date()
	return d.Time.Before(time.Date(y, m, day, 0, 0, 0, 0, time.UTC))
}

// Asset is a row of the assets table.
type Asset struct {
	ID           int64     `json:"id"`
	OrgID        int64     `json:"org_id"`
	ModelID      int64     `json:"model_id"`
	CostCenterID *int64    `json:"cost_center_id,omitempty"`
	DepartmentID *int64    `json:"department_id,omitempty"`
	LocationID   *int64    `json:"location_id,omitempty"`
	POLineID     *int64    `json:"po_line_id,omitempty"`
	AssetTag     *string   `json:"asset_tag"`
	SerialNumber *string   `json:"serial_number"`
	PurchaseDate *Date     `json:"purchase_date,omitempty"`
	Cost         *float64  `json:"cost,omitempty"`
	Currency     string    `json:"currency"`
	Notes        *string   `json:"notes,omitempty"`
	State        string    `json:"state"`
	Condition    string    `json:"condition"`
	QRCodeURL    *string   `json:"qr_code_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AssetDetail is a row of v_assets_detailed: the asset joined with its
// model, lookups and current assignment.
type AssetDetail struct {
	ID               int64      `json:"id"`
	OrgID            int64      `json:"org_id"`
	AssetTag         *string    `json:"asset_tag"`
	SerialNumber     *string    `json:"serial_number"`
	ModelID          int64      `json:"model_id"`
	ModelName        string     `json:"model_name"`
	Manufacturer     *string    `json:"manufacturer"`
	CategoryID       *int64     `json:"category_id"`
	CategoryName     *string    `json:"category_name"`
	DepartmentID     *int64     `json:"department_id"`
	DepartmentName   *string    `json:"department_name"`
	CostCenterID     *int64     `json:"cost_center_id"`
	CostCenterName   *string    `json:"cost_center_name"`
	LocationID       *int64     `json:"location_id"`
	LocationName     *string    `json:"location_name"`
	PurchaseDate     *Date      `json:"purchase_date"`
	Cost             *float64   `json:"cost"`
	Currency         string     `json:"currency"`
	State            string     `json:"state"`
	Condition        string     `json:"condition"`
	Notes            *string    `json:"notes"`
	QRCodeURL        *string    `json:"qr_code_url"`
	AssignedPersonID *int64     `json:"assigned_person_id"`
	AssignedTo       *string    `json:"assigned_to_person"`
	AssignedEmail    *string    `json:"assigned_to_email"`
	AssignedDate     *time.Time `json:"assigned_date"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AssetDetailColumns is the select list matching AssetDetail.ScanTargets.
const AssetDetailColumns = `id, org_id, asset_tag, serial_number, model_id, model_name, manufacturer,
	category_id, category_name, department_id, department_name, cost_center_id, cost_center_name,
	location_id, location_name, purchase_date, cost, currency, state, condition, notes, qr_code_url,
	assigned_person_id, assigned_to_person, assigned_to_email, assigned_date, created_at, updated_at`

// ScanTargets returns pointers in AssetDetailColumns order.
func (a *AssetDetail) ScanTargets() []interface{} {
	return []interface{}{
		&a.ID, &a.OrgID, &a.AssetTag, &a.SerialNumber, &a.ModelID, &a.ModelName, &a.Manufacturer,
		&a.CategoryID, &a.CategoryName, &a.DepartmentID, &a.DepartmentName, &a.CostCenterID, &a.CostCenterName,
		&a.LocationID, &a.LocationName, &a.PurchaseDate, &a.Cost, &a.Currency, &a.State, &a.Condition, &a.Notes, &a.QRCodeURL,
		&a.AssignedPersonID, &a.AssignedTo, &a.AssignedEmail, &a.AssignedDate, &a.CreatedAt, &a.UpdatedAt,
	}
}

// CreateAssetRequest is the body of POST /assets.
type CreateAssetRequest struct {
	ModelID      int64    `json:"model_id" validate:"required,gt=0"`
	CostCenterID *int64   `json:"cost_center_id,omitempty" validate:"omitempty,gt=0"`
	DepartmentID *int64   `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	LocationID   *int64   `json:"location_id,omitempty" validate:"omitempty,gt=0"`
	PersonID     *int64   `json:"person_id,omitempty" validate:"omitempty,gt=0"`
	SerialNumber *string  `json:"serial_number,omitempty" validate:"omitempty,max=255"`
	PurchaseDate *Date    `json:"purchase_date,omitempty"`
	Cost         *float64 `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Currency     *string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes        *string  `json:"notes,omitempty"`
	State        *string  `json:"state,omitempty" validate:"omitempty,asset_state"`
	Condition    *string  `json:"condition,omitempty" validate:"omitempty,asset_condition"`
}

// UpdateAssetRequest is the body of PUT /assets/{id}; nil fields are left unchanged.
type UpdateAssetRequest struct {
	ModelID      *int64   `json:"model_id,omitempty" validate:"omitempty,gt=0"`
	CostCenterID *int64   `json:"cost_center_id,omitempty" validate:"omitempty,gt=0"`
	DepartmentID *int64   `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	LocationID   *int64   `json:"location_id,omitempty" validate:"omitempty,gt=0"`
	SerialNumber *string  `json:"serial_number,omitempty" validate:"omitempty,max=255"`
	PurchaseDate *Date    `json:"purchase_date,omitempty"`
	Cost         *float64 `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Currency     *string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes        *string  `json:"notes,omitempty"`
	State        *string  `json:"state,omitempty" validate:"omitempty,asset_state"`
	Condition    *string  `json:"condition,omitempty" validate:"omitempty,asset_condition"`
}

// AssetAssignment records who holds an asset and for how long.
type AssetAssignment struct {
	ID         int64      `json:"id"`
	AssetID    int64      `json:"asset_id"`
	Type       string     `json:"type"`
	PersonID   int64      `json:"person_id"`
	PersonName string     `json:"person_name"`
	Email      string     `json:"email"`
	AssignedAt time.Time  `json:"assigned_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

type AssignAssetRequest struct {
	PersonID int64 `json:"person_id" validate:"required,gt=0"`
}

// CreateAssetResponse wraps the created asset with non-fatal workflow warnings.
type CreateAssetResponse struct {
	AssetDetail
	Warnings []string `json:"warnings,omitempty"`
}

// ScanRequest carries QR text decoded on the client. Empty text is left to
// the QR parser, which rejects it as not an asset code.
type ScanRequest struct {
	Text string `json:"text"`
}
