package models

import "time"

const (
	POPending   = "Pending"
	POReceived  = "Received"
	POCancelled = "Cancelled"
)

var POStatuses = []string{POPending, POReceived, POCancelled}

// PurchaseOrder is a PO header with totals derived from its lines.
type PurchaseOrder struct {
	ID         int64      `json:"id"`
	OrgID      int64      `json:"org_id"`
	PONumber   string     `json:"po_number"`
	Vendor     string     `json:"vendor"`
	OrderDate  Date       `json:"order_date"`
	Status     string     `json:"status"`
	Notes      *string    `json:"notes,omitempty"`
	ItemCount  int        `json:"item_count"`
	Total      float64    `json:"total"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Lines      []POLine   `json:"lines,omitempty"`
}

type POLine struct {
	ID          int64   `json:"id"`
	POID        int64   `json:"po_id"`
	ModelID     *int64  `json:"model_id"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
	LineTotal   float64 `json:"line_total"`
}

type POLineRequest struct {
	ModelID     *int64  `json:"model_id,omitempty" validate:"omitempty,gt=0"`
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    int     `json:"quantity" validate:"required,gt=0,max=10000"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
}

type CreatePurchaseOrderRequest struct {
	PONumber  string          `json:"po_number" validate:"required,max=64"`
	Vendor    string          `json:"vendor" validate:"required,max=255"`
	OrderDate *Date           `json:"order_date,omitempty"`
	Notes     *string         `json:"notes,omitempty"`
	Lines     []POLineRequest `json:"lines,omitempty" validate:"omitempty,dive"`
}

type UpdatePurchaseOrderRequest struct {
	Vendor    *string `json:"vendor,omitempty" validate:"omitempty,max=255"`
	OrderDate *Date   `json:"order_date,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// ReceiveResult lists the assets created when a PO is received.
type ReceiveResult struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
	AssetIDs      []int64       `json:"asset_ids"`
	Warnings      []string      `json:"warnings,omitempty"`
}
