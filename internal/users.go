package internal

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, org_id, roles, is_active, created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var roles pq.StringArray
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.OrgID, &roles, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt); err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// loginUser exchanges credentials for a token. Repeated failures lock the
// e-mail out for the configured duration.
func (s *Server) loginUser(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	email := normalizeEmail(req.Email)

	locked, err := s.Limiter.Locked(ctx, email)
	if err != nil {
		s.Log.Warn("lockout check failed", zap.Error(err))
	}
	if locked {
		s.Metrics.LoginFailed("locked")
		writeError(w, http.StatusTooManyRequests, "ACCOUNT_LOCKED", "Too many failed attempts, try again later")
		return
	}

	// Login runs before any org is known, so it bypasses the RLS connection.
	user, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1 AND is_active = true`, email))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.writeDBError(w, r, err, "User")
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.Metrics.LoginFailed("credentials")
		if nowLocked, lerr := s.Limiter.RecordFailure(ctx, email); lerr != nil {
			s.Log.Warn("record login failure", zap.Error(lerr))
		} else if nowLocked {
			s.Log.Warn("account locked out", zap.String("email", email))
		}
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}

	if err := s.Limiter.Reset(ctx, email); err != nil {
		s.Log.Warn("reset login attempts", zap.Error(err))
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, user.ID); err != nil {
		s.Log.Warn("update last_login_at failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	token, err := s.JWTManager.GenerateToken(user.ID, user.OrgID, user.Roles)
	if err != nil {
		s.Log.Error("generate token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, User: user.Redacted()})
}

// signup registers a viewer in the main organization when self sign-up is enabled.
func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	if !s.Config.AllowSignup {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Sign-up is disabled")
		return
	}
	var req models.SignupRequest
	if !s.decode(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	user, err := scanUser(s.DB.QueryRowContext(r.Context(), `
		INSERT INTO users (email, password_hash, first_name, last_name, org_id, roles)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		normalizeEmail(req.Email), hash, req.FirstName, req.LastName, auth.MainTenantID,
		pq.Array([]string{models.RoleViewer})))
	if err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "CONFLICT", "User with this email already exists")
			return
		}
		s.writeDBError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusCreated, user.Redacted())
}

// logout is stateless: tokens are not tracked server side, the client drops it.
func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	target := auth.GetTargetOrgID(ctx, req.OrgID)
	if !auth.CanManageOrg(ctx, target) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Cannot create users for this organization")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	user, err := scanUser(s.db(ctx).QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, org_id, roles)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		normalizeEmail(req.Email), hash, req.FirstName, req.LastName, target, pq.Array(req.Roles)))
	if err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "CONFLICT", "User with this email already exists")
			return
		}
		s.writeDBError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusCreated, user.Redacted())
}

// listUsers shows the caller's org. Main tenant admins see every org, or
// one org via ?org_id.
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)

	where := sq.And{}
	if auth.IsMainTenantAdmin(ctx) {
		if orgID, ok := queryInt64(r, "org_id"); ok {
			where = append(where, sq.Eq{"org_id": orgID})
		}
	} else {
		where = append(where, sq.Eq{"org_id": auth.OrgIDFromContext(ctx)})
	}
	if p.q != "" {
		like := likePattern(p.q)
		where = append(where, sq.Or{
			sq.ILike{"email": like}, sq.ILike{"first_name": like}, sq.ILike{"last_name": like},
		})
	}

	var total int
	countSQL, countArgs, err := psql.Select("COUNT(*)").From("users").Where(where).ToSql()
	if err == nil {
		err = s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Users")
		return
	}

	order := orderBy(p.sort, map[string]string{
		"id": "id", "email": "email", "created_at": "created_at", "last_login_at": "last_login_at",
	}, "id ASC")
	query, args, err := page(psql.Select(userColumns).From("users").Where(where).OrderBy(order...), p).ToSql()
	if err != nil {
		s.writeDBError(w, r, err, "Users")
		return
	}
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Users")
		return
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			s.writeDBError(w, r, err, "Users")
			return
		}
		users = append(users, u.Redacted())
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Users")
		return
	}
	sendListResponse(w, users, p, total)
}

// loadManagedUser fetches a user the caller may administer. Users in other
// orgs look missing to non main tenant admins.
func (s *Server) loadManagedUser(r *http.Request, id int64) (*models.User, error) {
	ctx := r.Context()
	u, err := scanUser(s.db(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if !auth.CanManageOrg(ctx, u.OrgID) {
		return nil, errNotFound
	}
	return u, nil
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := s.loadManagedUser(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, u.Redacted())
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.UpdateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	existing, err := s.loadManagedUser(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}

	b := psql.Update("users").Set("updated_at", sq.Expr("now()"))
	if req.FirstName != nil {
		b = b.Set("first_name", *req.FirstName)
	}
	if req.LastName != nil {
		b = b.Set("last_name", *req.LastName)
	}
	if req.Roles != nil {
		b = b.Set("roles", pq.Array(req.Roles))
	}
	if req.IsActive != nil {
		b = b.Set("is_active", *req.IsActive)
	}
	if req.OrgID != nil && *req.OrgID != existing.OrgID {
		if !auth.IsMainTenantAdmin(ctx) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the main tenant can move users between organizations")
			return
		}
		b = b.Set("org_id", *req.OrgID)
	}

	demoting := existing.HasRole(models.RoleOrgAdmin) &&
		((req.Roles != nil && !containsRole(req.Roles, models.RoleOrgAdmin)) ||
			(req.IsActive != nil && !*req.IsActive) ||
			(req.OrgID != nil && *req.OrgID != existing.OrgID))
	if demoting {
		last, err := s.isLastAdmin(r, existing)
		if err != nil {
			s.writeDBError(w, r, err, "User")
			return
		}
		if last {
			writeError(w, http.StatusConflict, "LAST_ADMIN", "Cannot remove the last org_admin of an organization")
			return
		}
	}

	query, args, err := b.Where(sq.Eq{"id": id}).Suffix("RETURNING " + userColumns).ToSql()
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	u, err := scanUser(s.db(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, u.Redacted())
}

func (s *Server) isLastAdmin(r *http.Request, u *models.User) (bool, error) {
	if !u.HasRole(models.RoleOrgAdmin) || !u.IsActive {
		return false, nil
	}
	var others int
	err := s.db(r.Context()).QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM users
		WHERE org_id = $1 AND 'org_admin' = ANY(roles) AND is_active AND id <> $2`,
		u.OrgID, u.ID).Scan(&others)
	return others == 0, err
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	if id == auth.UserIDFromContext(ctx) {
		writeError(w, http.StatusConflict, "SELF_DELETE", "You cannot delete your own account")
		return
	}
	u, err := s.loadManagedUser(r, id)
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	last, err := s.isLastAdmin(r, u)
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	if last {
		writeError(w, http.StatusConflict, "LAST_ADMIN", "Cannot delete the last org_admin of an organization")
		return
	}
	if _, err := s.db(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getUserProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := scanUser(s.db(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, auth.UserIDFromContext(ctx)))
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, u.Redacted())
}

func (s *Server) updateUserProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	u, err := scanUser(s.db(ctx).QueryRowContext(ctx, `
		UPDATE users
		SET first_name = COALESCE($1, first_name), last_name = COALESCE($2, last_name), updated_at = now()
		WHERE id = $3
		RETURNING `+userColumns, req.FirstName, req.LastName, auth.UserIDFromContext(ctx)))
	if err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, u.Redacted())
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID := auth.UserIDFromContext(ctx)

	var current string
	if err := s.db(ctx).QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&current); err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	if !auth.CheckPassword(current, req.CurrentPassword) {
		writeError(w, http.StatusBadRequest, "INVALID_PASSWORD", "Current password is incorrect")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	if _, err := s.db(ctx).ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`, hash, userID); err != nil {
		s.writeDBError(w, r, err, "User")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
