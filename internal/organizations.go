package internal

import (
	"net/http"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

func requireMainTenant(w http.ResponseWriter, r *http.Request) bool {
	if !auth.IsMainTenantAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only main tenant administrators can manage organizations")
		return false
	}
	return true
}

// orgAccess answers 404 for orgs the caller may not see.
func orgAccess(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return 0, false
	}
	if !auth.CanManageOrg(r.Context(), id) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Organization not found")
		return 0, false
	}
	return id, true
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	if !requireMainTenant(w, r) {
		return
	}
	ctx := r.Context()
	p := parseListParams(r)

	var total int
	if err := s.db(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Organizations")
		return
	}
	order := orderBy(p.sort, map[string]string{"id": "id", "name": "name", "created_at": "created_at"}, "id ASC")
	query, args, err := page(psql.Select("id, name, created_at, updated_at").From("organizations").OrderBy(order...), p).ToSql()
	if err != nil {
		s.writeDBError(w, r, err, "Organizations")
		return
	}
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Organizations")
		return
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt); err != nil {
			s.writeDBError(w, r, err, "Organizations")
			return
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Organizations")
		return
	}
	sendListResponse(w, orgs, p, total)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := orgAccess(w, r)
	if !ok {
		return
	}
	var o models.Organization
	err := s.db(r.Context()).QueryRowContext(r.Context(),
		`SELECT id, name, created_at, updated_at FROM organizations WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		s.writeDBError(w, r, err, "Organization")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) getOrganizationStats(w http.ResponseWriter, r *http.Request) {
	id, ok := orgAccess(w, r)
	if !ok {
		return
	}
	stats := models.OrganizationStats{OrgID: id}
	err := s.db(r.Context()).QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM users   WHERE org_id = $1),
			(SELECT COUNT(*) FROM people  WHERE org_id = $1 AND is_active),
			(SELECT COUNT(*) FROM assets  WHERE org_id = $1),
			(SELECT COUNT(*) FROM tickets WHERE org_id = $1 AND status IN ('open', 'in_progress'))`, id).
		Scan(&stats.Users, &stats.People, &stats.Assets, &stats.OpenTickets)
	if err != nil {
		s.writeDBError(w, r, err, "Organization")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	if !requireMainTenant(w, r) {
		return
	}
	var req models.OrganizationRequest
	if !s.decode(w, r, &req) {
		return
	}
	o := models.Organization{Name: req.Name}
	err := s.db(r.Context()).QueryRowContext(r.Context(),
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id, created_at, updated_at`, req.Name).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		s.writeDBError(w, r, err, "Organization")
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := orgAccess(w, r)
	if !ok {
		return
	}
	var req models.OrganizationRequest
	if !s.decode(w, r, &req) {
		return
	}
	o := models.Organization{ID: id}
	err := s.db(r.Context()).QueryRowContext(r.Context(), `
		UPDATE organizations SET name = $1, updated_at = now() WHERE id = $2
		RETURNING name, created_at, updated_at`, req.Name, id).
		Scan(&o.Name, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		s.writeDBError(w, r, err, "Organization")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// deleteOrganization removes a tenant. The main tenant itself cannot be
// deleted, and neither can an org that still has users.
func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	if !requireMainTenant(w, r) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if id == auth.MainTenantID {
		writeError(w, http.StatusConflict, "MAIN_TENANT", "The main organization cannot be deleted")
		return
	}
	res, err := s.db(r.Context()).ExecContext(r.Context(), `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		s.writeDBError(w, r, err, "Organization")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Organization not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
