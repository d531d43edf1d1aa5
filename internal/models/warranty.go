package models

import "time"

const (
	WarrantyActive  = "Active"
	WarrantyExpired = "Expired"
)

type Warranty struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	AssetID   int64     `json:"asset_id"`
	AssetTag  *string   `json:"asset_tag"`
	ModelName *string   `json:"model_name"`
	Provider  *string   `json:"provider"`
	StartDate *Date     `json:"start_date"`
	EndDate   Date      `json:"end_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WarrantyRequest struct {
	AssetID   int64   `json:"asset_id" validate:"required,gt=0"`
	Provider  *string `json:"provider,omitempty" validate:"omitempty,max=255"`
	StartDate *Date   `json:"start_date,omitempty"`
	EndDate   *Date   `json:"end_date" validate:"required"`
}

// WarrantyStatus derives the status for a warranty ending on end as of now.
func WarrantyStatus(end Date, now time.Time) string {
	if end.BeforeDay(now) {
		return WarrantyExpired
	}
	return WarrantyActive
}
