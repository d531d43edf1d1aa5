package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const personColumns = `id, org_id, first_name, last_name, email, department_id, department_name,
	user_type, managed_by, manager_name, is_active, created_at, updated_at`

var errInvalidEmail = errors.New("email must be a valid address")

func scanPerson(row rowScanner) (*models.Person, error) {
	var p models.Person
	err := row.Scan(&p.ID, &p.OrgID, &p.FirstName, &p.LastName, &p.Email, &p.DepartmentID, &p.DepartmentName,
		&p.UserType, &p.ManagedBy, &p.ManagerName, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

// normalizePersonEmail pins addresses to domain when one is configured:
// "jdoe" and "jdoe@corp.com" both become "jdoe@corp.com". Addresses in any
// other domain are rejected.
func normalizePersonEmail(email, domain string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if domain == "" {
		if i := strings.Index(email, "@"); i <= 0 || i == len(email)-1 {
			return "", errInvalidEmail
		}
		return email, nil
	}
	suffix := "@" + strings.ToLower(domain)
	for strings.HasSuffix(email, suffix) {
		email = strings.TrimSuffix(email, suffix)
	}
	if email == "" || strings.Contains(email, "@") {
		return "", errInvalidEmail
	}
	return email + suffix, nil
}

func (s *Server) listPeople(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := sq.And{sq.Eq{"org_id": auth.OrgIDFromContext(ctx)}}
	if r.URL.Query().Get("include_inactive") != "true" {
		where = append(where, sq.Eq{"is_active": true})
	}
	if deptID, ok := queryInt64(r, "department_id"); ok {
		where = append(where, sq.Eq{"department_id": deptID})
	}
	if ut := r.URL.Query().Get("user_type"); ut != "" {
		where = append(where, sq.Eq{"user_type": ut})
	}
	if p.q != "" {
		like := likePattern(p.q)
		where = append(where, sq.Or{
			sq.ILike{"first_name": like}, sq.ILike{"last_name": like}, sq.ILike{"email": like},
			sq.Expr("(first_name || ' ' || last_name) ILIKE ?", like),
		})
	}
	order := orderBy(p.sort, map[string]string{
		"id": "id", "first_name": "first_name", "last_name": "last_name", "email": "email",
		"department": "department_name", "created_at": "created_at",
	}, "first_name ASC", "last_name ASC")
	s.listPeopleWhere(w, r, p, where, order)
}

// listManagers returns every active Manager for the managed_by picker.
func (s *Server) listManagers(w http.ResponseWriter, r *http.Request) {
	p := parseListParams(r)
	p.limit, p.offset = maxLimit, 0
	where := sq.And{
		sq.Eq{"org_id": auth.OrgIDFromContext(r.Context())},
		sq.Eq{"user_type": models.PersonManager},
		sq.Eq{"is_active": true},
	}
	s.listPeopleWhere(w, r, p, where, []string{"first_name ASC", "last_name ASC"})
}

func (s *Server) listPeopleWhere(w http.ResponseWriter, r *http.Request, p listParams, where sq.And, order []string) {
	ctx := r.Context()
	var total int
	countSQL, countArgs, _ := psql.Select("COUNT(*)").From("people_with_department").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "People")
		return
	}

	query, args, _ := page(psql.Select(personColumns).From("people_with_department").Where(where).OrderBy(order...), p).ToSql()
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "People")
		return
	}
	defer rows.Close()

	var out []models.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			s.writeDBError(w, r, err, "People")
			return
		}
		out = append(out, *person)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "People")
		return
	}
	sendListResponse(w, out, p, total)
}

func (s *Server) loadPerson(r *http.Request, id int64) (*models.Person, error) {
	ctx := r.Context()
	return scanPerson(s.db(ctx).QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people_with_department WHERE id = $1 AND org_id = $2`,
		id, auth.OrgIDFromContext(ctx)))
}

func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	person, err := s.loadPerson(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// checkManager verifies managerID is an active Manager in the caller's org
// and not the person being edited. It writes a 400 and returns false otherwise.
func (s *Server) checkManager(w http.ResponseWriter, r *http.Request, managerID, selfID int64) bool {
	if managerID == selfID {
		writeError(w, http.StatusBadRequest, "INVALID_MANAGER", "A person cannot manage themselves")
		return false
	}
	ctx := r.Context()
	var userType string
	err := s.db(ctx).QueryRowContext(ctx,
		`SELECT user_type FROM people WHERE id = $1 AND org_id = $2 AND is_active`,
		managerID, auth.OrgIDFromContext(ctx)).Scan(&userType)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && userType != models.PersonManager) {
		writeError(w, http.StatusBadRequest, "INVALID_MANAGER", "managed_by must reference a Manager")
		return false
	}
	if err != nil {
		s.writeDBError(w, r, err, "Person")
		return false
	}
	return true
}

func (s *Server) createPerson(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePersonRequest
	if !s.decode(w, r, &req) {
		return
	}
	email, err := normalizePersonEmail(req.Email, s.Config.EmailDomain)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	userType := req.UserType
	if userType == "" {
		userType = models.PersonGeneralUser
	}
	managedBy := req.ManagedBy
	if userType == models.PersonManager {
		managedBy = nil
	}
	if managedBy != nil && !s.checkManager(w, r, *managedBy, 0) {
		return
	}

	ctx := r.Context()
	if err := checkRefs(ctx, s.db(ctx), auth.OrgIDFromContext(ctx), orgRef{table: "departments", id: req.DepartmentID}); err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}
	var id int64
	err = s.db(ctx).QueryRowContext(ctx, `
		INSERT INTO people (org_id, first_name, last_name, email, department_id, user_type, managed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		auth.OrgIDFromContext(ctx), strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName),
		email, req.DepartmentID, userType, managedBy).Scan(&id)
	if err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}
	person, err := s.loadPerson(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

func (s *Server) updatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.UpdatePersonRequest
	if !s.decode(w, r, &req) {
		return
	}
	existing, err := s.loadPerson(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}

	b := psql.Update("people").Set("updated_at", sq.Expr("now()"))
	if req.FirstName != nil {
		b = b.Set("first_name", strings.TrimSpace(*req.FirstName))
	}
	if req.LastName != nil {
		b = b.Set("last_name", strings.TrimSpace(*req.LastName))
	}
	if req.Email != nil {
		email, err := normalizePersonEmail(*req.Email, s.Config.EmailDomain)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}
		b = b.Set("email", email)
	}
	if req.DepartmentID != nil {
		ctx := r.Context()
		if err := refInOrg(ctx, s.db(ctx), "departments", auth.OrgIDFromContext(ctx), *req.DepartmentID); err != nil {
			s.writeDBError(w, r, err, "Person")
			return
		}
		b = b.Set("department_id", *req.DepartmentID)
	}
	if req.IsActive != nil {
		b = b.Set("is_active", *req.IsActive)
	}

	userType := existing.UserType
	if req.UserType != nil {
		userType = *req.UserType
		b = b.Set("user_type", userType)
	}
	switch {
	case userType == models.PersonManager:
		b = b.Set("managed_by", nil)
	case req.ManagedBy != nil:
		if !s.checkManager(w, r, *req.ManagedBy, id) {
			return
		}
		b = b.Set("managed_by", *req.ManagedBy)
	}

	ctx := r.Context()
	query, args, _ := b.Where(sq.Eq{"id": id, "org_id": auth.OrgIDFromContext(ctx)}).ToSql()
	if _, err := s.db(ctx).ExecContext(ctx, query, args...); err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}
	person, err := s.loadPerson(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// deactivatePerson is a soft delete: the row stays for history and any
// asset still checked out to the person is returned. Those assets get their
// QR code re-published; failures are reported as warnings with a 200.
func (s *Server) deactivatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	var returned []int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE people SET is_active = false, updated_at = now() WHERE id = $1 AND org_id = $2`, id, orgID)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `
			UPDATE asset_assignments SET returned_at = now()
			WHERE person_id = $1 AND returned_at IS NULL
			RETURNING asset_id`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var assetID int64
			if err := rows.Scan(&assetID); err != nil {
				return err
			}
			returned = append(returned, assetID)
		}
		return rows.Err()
	})
	if err != nil {
		s.writeDBError(w, r, err, "Person")
		return
	}

	var warnings []string
	for _, assetID := range returned {
		if _, err := s.publishQR(ctx, orgID, assetID); err != nil {
			warnings = append(warnings, fmt.Sprintf("qr code for asset %d: %s", assetID, err))
		}
	}
	if len(warnings) > 0 {
		writeJSON(w, http.StatusOK, map[string][]string{"warnings": warnings})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
