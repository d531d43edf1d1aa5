package auth

import (
	"context"

	"itam-api/internal/models"
)

// MainTenantID is the organization whose admins manage every other tenant.
const MainTenantID int64 = 1

// IsMainTenant reports whether the caller belongs to the main tenant.
func IsMainTenant(ctx context.Context) bool {
	return OrgIDFromContext(ctx) == MainTenantID
}

// IsMainTenantAdmin reports whether the caller is an org_admin of the main tenant.
func IsMainTenantAdmin(ctx context.Context) bool {
	claims := ClaimsFromContext(ctx)
	return claims != nil && claims.OrgID == MainTenantID && claims.HasRole(models.RoleOrgAdmin)
}

// GetTargetOrgID resolves the organization a write should land in. Only a
// main tenant admin may address another org; everyone else gets their own.
func GetTargetOrgID(ctx context.Context, requested *int64) int64 {
	if requested != nil && *requested > 0 && IsMainTenantAdmin(ctx) {
		return *requested
	}
	return OrgIDFromContext(ctx)
}

// CanManageOrg reports whether the caller may administer orgID.
func CanManageOrg(ctx context.Context, orgID int64) bool {
	if IsMainTenantAdmin(ctx) {
		return true
	}
	claims := ClaimsFromContext(ctx)
	return claims != nil && claims.OrgID == orgID && claims.HasRole(models.RoleOrgAdmin)
}
