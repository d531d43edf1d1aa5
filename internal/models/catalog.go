package models

import "time"

// Lookup is a name/code row shared by asset_categories, cost_centers and locations.
type Lookup struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	Code      *string   `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LookupRequest struct {
	Name string  `json:"name" validate:"required,max=255"`
	Code *string `json:"code,omitempty" validate:"omitempty,max=64"`
}

// AssetModel is a make/model an asset is an instance of. SKU drives asset tags.
type AssetModel struct {
	ID           int64     `json:"id"`
	OrgID        int64     `json:"org_id"`
	CategoryID   *int64    `json:"category_id"`
	CategoryName *string   `json:"category_name,omitempty"`
	Vendor       *string   `json:"vendor"`
	Name         string    `json:"name"`
	SKU          *string   `json:"sku"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AssetModelRequest struct {
	CategoryID *int64  `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	Vendor     *string `json:"vendor,omitempty" validate:"omitempty,max=255"`
	Name       string  `json:"name" validate:"required,max=255"`
	SKU        *string `json:"sku,omitempty" validate:"omitempty,max=64"`
}
