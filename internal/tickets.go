package internal

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"itam-api/internal/auth"
	"itam-api/internal/models"
)

const ticketColumns = `t.id, t.org_id, t.asset_id, m.name, a.asset_tag, t.title, t.description,
	t.status, t.priority, t.created_by, t.created_at, t.updated_at`

var ticketSortColumns = map[string]string{
	"created_at": "t.created_at",
	"updated_at": "t.updated_at",
	"priority":   "t.priority",
	"status":     "t.status",
	"title":      "t.title",
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.OrgID, &t.AssetID, &t.ModelName, &t.AssetTag, &t.Title, &t.Description,
		&t.Status, &t.Priority, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func ticketSelect(cols string) sq.SelectBuilder {
	return psql.Select(cols).
		From("tickets t").
		LeftJoin("assets a ON a.id = t.asset_id").
		LeftJoin("asset_models m ON m.id = a.model_id")
}

// ticketFilter applies view=open|completed plus status, priority, asset_id and q.
func ticketFilter(r *http.Request, orgID int64, q string) sq.And {
	where := sq.And{sq.Eq{"t.org_id": orgID}}
	values := r.URL.Query()
	completed := []string{"resolved", "closed"}
	switch values.Get("view") {
	case "open":
		where = append(where, sq.NotEq{"t.status": completed})
	case "completed":
		where = append(where, sq.Eq{"t.status": completed})
	}
	if status := values.Get("status"); status != "" {
		where = append(where, sq.Eq{"t.status": status})
	}
	if priority := values.Get("priority"); priority != "" {
		where = append(where, sq.Eq{"t.priority": priority})
	}
	if assetID, ok := queryInt64(r, "asset_id"); ok {
		where = append(where, sq.Eq{"t.asset_id": assetID})
	}
	if q != "" {
		like := likePattern(q)
		where = append(where, sq.Or{sq.ILike{"t.title": like}, sq.ILike{"a.asset_tag": like}})
	}
	return where
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parseListParams(r)
	where := ticketFilter(r, auth.OrgIDFromContext(ctx), p.q)

	var total int
	countSQL, countArgs, _ := ticketSelect("COUNT(*)").Where(where).ToSql()
	if err := s.db(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.writeDBError(w, r, err, "Tickets")
		return
	}

	query, args, _ := page(ticketSelect(ticketColumns).Where(where).
		OrderBy(orderBy(p.sort, ticketSortColumns, "t.created_at DESC", "t.id DESC")...), p).ToSql()
	rows, err := s.db(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.writeDBError(w, r, err, "Tickets")
		return
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			s.writeDBError(w, r, err, "Tickets")
			return
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Tickets")
		return
	}
	sendListResponse(w, tickets, p, total)
}

func (s *Server) loadTicket(ctx context.Context, orgID, id int64) (*models.Ticket, error) {
	query, args, _ := ticketSelect(ticketColumns).Where(sq.Eq{"t.id": id, "t.org_id": orgID}).ToSql()
	return scanTicket(s.db(ctx).QueryRowContext(ctx, query, args...))
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := s.loadTicket(r.Context(), auth.OrgIDFromContext(r.Context()), id)
	if err != nil {
		s.writeDBError(w, r, err, "Ticket")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// checkAsset reports errUnknownAsset unless assetID is an asset of orgID.
func checkAsset(ctx context.Context, q rowQuerier, orgID, assetID int64) error {
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM assets WHERE id = $1 AND org_id = $2)`, assetID, orgID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return errUnknownAsset
	}
	return nil
}

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTicketRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)
	if req.AssetID != nil {
		if err := checkAsset(ctx, s.db(ctx), orgID, *req.AssetID); err != nil {
			s.writeDBError(w, r, err, "Ticket")
			return
		}
	}
	status, priority := req.Status, req.Priority
	if status == "" {
		status = "open"
	}
	if priority == "" {
		priority = "medium"
	}

	var id int64
	err := s.db(ctx).QueryRowContext(ctx, `
		INSERT INTO tickets (org_id, asset_id, title, description, status, priority, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		orgID, req.AssetID, strings.TrimSpace(req.Title), nullIfBlank(req.Description), status, priority,
		auth.UserIDFromContext(ctx)).Scan(&id)
	if err != nil {
		s.writeDBError(w, r, err, "Ticket")
		return
	}
	t, err := s.loadTicket(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Ticket")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.UpdateTicketRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	orgID := auth.OrgIDFromContext(ctx)

	b := psql.Update("tickets").Set("updated_at", sq.Expr("now()"))
	if req.AssetID != nil {
		if err := checkAsset(ctx, s.db(ctx), orgID, *req.AssetID); err != nil {
			s.writeDBError(w, r, err, "Ticket")
			return
		}
		b = b.Set("asset_id", *req.AssetID)
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "title cannot be blank")
			return
		}
		b = b.Set("title", title)
	}
	if req.Description != nil {
		b = b.Set("description", nullIfBlank(req.Description))
	}
	if req.Status != nil {
		b = b.Set("status", *req.Status)
	}
	if req.Priority != nil {
		b = b.Set("priority", *req.Priority)
	}

	query, args, _ := b.Where(sq.Eq{"id": id, "org_id": orgID}).ToSql()
	res, err := s.db(ctx).ExecContext(ctx, query, args...)
	if err == nil {
		err = requireAffected(res)
	}
	if err != nil {
		s.writeDBError(w, r, err, "Ticket")
		return
	}
	t, err := s.loadTicket(ctx, orgID, id)
	if err != nil {
		s.writeDBError(w, r, err, "Ticket")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// deleteTicket removes the ticket; its updates go with it by cascade.
func (s *Server) deleteTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.deleteOwned(w, r, "tickets", id, "Ticket")
}

func (s *Server) listTicketUpdates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	rows, err := s.db(ctx).QueryContext(ctx, `
		SELECT u.id, u.ticket_id, u.note, u.author_id, u.created_at
		FROM ticket_updates u
		JOIN tickets t ON t.id = u.ticket_id
		WHERE u.ticket_id = $1 AND t.org_id = $2
		ORDER BY u.created_at DESC, u.id DESC`, id, auth.OrgIDFromContext(ctx))
	if err != nil {
		s.writeDBError(w, r, err, "Ticket updates")
		return
	}
	defer rows.Close()

	out := []models.TicketUpdate{}
	for rows.Next() {
		var u models.TicketUpdate
		if err := rows.Scan(&u.ID, &u.TicketID, &u.Note, &u.AuthorID, &u.CreatedAt); err != nil {
			s.writeDBError(w, r, err, "Ticket updates")
			return
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		s.writeDBError(w, r, err, "Ticket updates")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// addTicketUpdate appends a note by the caller and bumps the ticket's updated_at.
func (s *Server) addTicketUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.TicketUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	u := models.TicketUpdate{TicketID: id, Note: strings.TrimSpace(req.Note)}
	if uid := auth.UserIDFromContext(ctx); uid > 0 {
		u.AuthorID = &uid
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET updated_at = now() WHERE id = $1 AND org_id = $2`, id, auth.OrgIDFromContext(ctx))
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO ticket_updates (ticket_id, note, author_id) VALUES ($1, $2, $3)
			RETURNING id, created_at`, id, u.Note, u.AuthorID).Scan(&u.ID, &u.CreatedAt)
	})
	if err != nil {
		s.writeDBError(w, r, err, "Ticket")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}
