package internal

import (
	"net/http"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

// listRoles returns the role catalogue with the number of active staff in
// the caller's org holding each role.
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := s.db(ctx).QueryContext(ctx, `
		SELECT role, COUNT(*)
		FROM users, unnest(roles) AS role
		WHERE org_id = $1 AND is_active
		GROUP BY role`, auth.OrgIDFromContext(ctx))
	if err != nil {
		s.writeDBError(w, r, err, "Roles")
		return
	}
	defer rows.Close()

	members := make(map[string]int, len(models.RoleCatalog))
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			s.writeDBError(w, r, err, "Roles")
			return
		}
		members[role] = n
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Roles")
		return
	}

	out := make([]models.RoleDefinition, len(models.RoleCatalog))
	for i, def := range models.RoleCatalog {
		def.Members = members[def.Key]
		out[i] = def
	}
	writeJSON(w, http.StatusOK, out)
}
