package models

// Dashboard is the landing-page summary for one organization.
type Dashboard struct {
	AssetsByState        map[string]int `json:"assets_by_state"`
	TotalAssets          int            `json:"total_assets"`
	OpenTicketsBy        map[string]int `json:"open_tickets_by_priority"`
	LicensesAvailable    int            `json:"licenses_available"`
	LicensesUtilized     int            `json:"licenses_utilized"`
	WarrantiesExpiring   int            `json:"warranties_expiring_30d"`
	PendingPurchaseOrder int            `json:"pending_purchase_orders"`
}
