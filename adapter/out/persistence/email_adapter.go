// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"mailflow/core/domain"
	"mailflow/pkg/apperr"
)

// EmailAdapter implements out.EmailRepository on SQLite. Writes are
// serialized through mu; the FTS row is rebuilt in the same transaction
// as the row it mirrors.
type EmailAdapter struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewEmailAdapter creates a new EmailAdapter.
func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

// =============================================================================
// Database Row Mapping
// =============================================================================

const emailSelectColumns = `
	e.id, e.message_id, e.uid, e.folder, e.thread_id, e.in_reply_to, e.email_references,
	e.subject, e.from_address, e.from_name,
	e.body_text, e.body_html, e.snippet,
	e.date_sent, e.date_received,
	e.is_read, e.is_starred, e.is_important, e.is_draft, e.is_sent, e.is_trash, e.is_spam,
	e.labels, e.size_bytes, e.attachment_count, e.raw_headers,
	e.created_at, e.updated_at`

type emailRow struct {
	ID         int64  `db:"id"`
	MessageID  string `db:"message_id"`
	UID        int64  `db:"uid"`
	Folder     string `db:"folder"`
	ThreadID   string `db:"thread_id"`
	InReplyTo  string `db:"in_reply_to"`
	References string `db:"email_references"`

	Subject     string `db:"subject"`
	FromAddress string `db:"from_address"`
	FromName    string `db:"from_name"`

	BodyText string `db:"body_text"`
	BodyHTML string `db:"body_html"`
	Snippet  string `db:"snippet"`

	DateSent     time.Time `db:"date_sent"`
	DateReceived time.Time `db:"date_received"`

	IsRead      bool `db:"is_read"`
	IsStarred   bool `db:"is_starred"`
	IsImportant bool `db:"is_important"`
	IsDraft     bool `db:"is_draft"`
	IsSent      bool `db:"is_sent"`
	IsTrash     bool `db:"is_trash"`
	IsSpam      bool `db:"is_spam"`

	Labels          string `db:"labels"`
	SizeBytes       int64  `db:"size_bytes"`
	AttachmentCount int    `db:"attachment_count"`
	RawHeaders      string `db:"raw_headers"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *emailRow) toEntity() *domain.Email {
	e := &domain.Email{
		ID:              r.ID,
		MessageID:       r.MessageID,
		UID:             uint32(r.UID),
		Folder:          r.Folder,
		ThreadID:        r.ThreadID,
		InReplyTo:       r.InReplyTo,
		Subject:         r.Subject,
		FromAddress:     r.FromAddress,
		FromName:        r.FromName,
		BodyText:        r.BodyText,
		BodyHTML:        r.BodyHTML,
		Snippet:         r.Snippet,
		DateSent:        r.DateSent,
		DateReceived:    r.DateReceived,
		IsRead:          r.IsRead,
		IsStarred:       r.IsStarred,
		IsImportant:     r.IsImportant,
		IsDraft:         r.IsDraft,
		IsSent:          r.IsSent,
		IsTrash:         r.IsTrash,
		IsSpam:          r.IsSpam,
		SizeBytes:       r.SizeBytes,
		AttachmentCount: r.AttachmentCount,
		RawHeaders:      r.RawHeaders,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	e.Labels = decodeStrings(r.Labels)
	e.References = decodeStrings(r.References)
	return e
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// =============================================================================
// Upsert
// =============================================================================

// UpsertEmail writes or refreshes a message keyed by Message-ID. The
// dependent rows and the FTS entry are replaced in one transaction.
func (a *EmailAdapter) UpsertEmail(ctx context.Context, email *domain.Email) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperr.DatabaseError("begin upsert", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	email.AttachmentCount = len(email.Attachments)

	var id int64
	err = tx.GetContext(ctx, &id, `SELECT id FROM emails WHERE message_id = ?`, email.MessageID)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE emails SET
				uid = ?, folder = ?, thread_id = ?, in_reply_to = ?, email_references = ?,
				subject = ?, from_address = ?, from_name = ?,
				body_text = ?, body_html = ?, snippet = ?,
				date_sent = ?, date_received = ?,
				is_read = ?, is_starred = ?, is_important = ?, is_draft = ?, is_sent = ?, is_trash = ?, is_spam = ?,
				labels = ?, size_bytes = ?, attachment_count = ?, raw_headers = ?,
				updated_at = ?
			WHERE id = ?`,
			email.UID, email.Folder, email.ThreadID, email.InReplyTo, encodeStrings(email.References),
			email.Subject, email.FromAddress, email.FromName,
			email.BodyText, email.BodyHTML, email.Snippet,
			email.DateSent, email.DateReceived,
			email.IsRead, email.IsStarred, email.IsImportant, email.IsDraft, email.IsSent, email.IsTrash, email.IsSpam,
			encodeStrings(email.Labels), email.SizeBytes, email.AttachmentCount, email.RawHeaders,
			now, id,
		)
		if err != nil {
			return 0, apperr.DatabaseError("update email", err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM recipients WHERE email_id = ?`, id); err != nil {
			return 0, apperr.DatabaseError("clear recipients", err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM attachments WHERE email_id = ?`, id); err != nil {
			return 0, apperr.DatabaseError("clear attachments", err)
		}

	case errors.Is(err, sql.ErrNoRows):
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO emails (
				message_id, uid, folder, thread_id, in_reply_to, email_references,
				subject, from_address, from_name,
				body_text, body_html, snippet,
				date_sent, date_received,
				is_read, is_starred, is_important, is_draft, is_sent, is_trash, is_spam,
				labels, size_bytes, attachment_count, raw_headers,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			email.MessageID, email.UID, email.Folder, email.ThreadID, email.InReplyTo, encodeStrings(email.References),
			email.Subject, email.FromAddress, email.FromName,
			email.BodyText, email.BodyHTML, email.Snippet,
			email.DateSent, email.DateReceived,
			email.IsRead, email.IsStarred, email.IsImportant, email.IsDraft, email.IsSent, email.IsTrash, email.IsSpam,
			encodeStrings(email.Labels), email.SizeBytes, email.AttachmentCount, email.RawHeaders,
			now, now,
		)
		if execErr != nil {
			return 0, apperr.DatabaseError("insert email", execErr)
		}
		id, execErr = res.LastInsertId()
		if execErr != nil {
			return 0, apperr.DatabaseError("insert email", execErr)
		}

	default:
		return 0, apperr.DatabaseError("lookup email", err)
	}

	for _, r := range email.Recipients {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO recipients (email_id, kind, address, name, domain)
			VALUES (?, ?, ?, ?, ?)`,
			id, r.Kind, r.Address, r.Name, r.Domain,
		); err != nil {
			return 0, apperr.DatabaseError("insert recipient", err)
		}
	}

	for _, att := range email.Attachments {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO attachments (email_id, filename, content_type, extension, size_bytes, content_id, is_inline)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, att.Filename, att.ContentType, att.Extension, att.SizeBytes, att.ContentID, att.IsInline,
		); err != nil {
			return 0, apperr.DatabaseError("insert attachment", err)
		}
	}

	if err = a.rebuildFTSRow(ctx, tx, id, email); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, apperr.DatabaseError("commit upsert", err)
	}

	email.ID = id
	return id, nil
}

func (a *EmailAdapter) rebuildFTSRow(ctx context.Context, tx *sqlx.Tx, id int64, email *domain.Email) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM emails_fts WHERE email_id = ?`, id); err != nil {
		return apperr.DatabaseError("clear fts row", err)
	}

	var recipients []string
	for _, r := range email.Recipients {
		recipients = append(recipients, r.Address)
		if r.Name != "" {
			recipients = append(recipients, r.Name)
		}
	}
	var attachments []string
	for _, att := range email.Attachments {
		if att.Filename != "" {
			attachments = append(attachments, att.Filename)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO emails_fts (email_id, message_id, subject, from_address, from_name, body_text, recipients, attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, email.MessageID, email.Subject, email.FromAddress, email.FromName,
		email.BodyText, strings.Join(recipients, " "), strings.Join(attachments, " "),
	); err != nil {
		return apperr.DatabaseError("insert fts row", err)
	}
	return nil
}

// =============================================================================
// Lookups
// =============================================================================

func (a *EmailAdapter) GetByMessageID(ctx context.Context, messageID string) (*domain.Email, error) {
	var row emailRow
	err := a.db.GetContext(ctx, &row,
		`SELECT `+emailSelectColumns+` FROM emails e WHERE e.message_id = ?`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("email")
	}
	if err != nil {
		return nil, apperr.DatabaseError("get email", err)
	}

	email := row.toEntity()
	if err := a.loadChildren(ctx, []*domain.Email{email}); err != nil {
		return nil, err
	}
	return email, nil
}

func (a *EmailAdapter) GetByMessageIDs(ctx context.Context, messageIDs []string) ([]*domain.Email, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+emailSelectColumns+` FROM emails e WHERE e.message_id IN (?) ORDER BY e.date_sent DESC`,
		messageIDs)
	if err != nil {
		return nil, apperr.DatabaseError("build lookup", err)
	}

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, a.db.Rebind(query), args...); err != nil {
		return nil, apperr.DatabaseError("get emails", err)
	}

	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toEntity())
	}
	if err := a.loadChildren(ctx, emails); err != nil {
		return nil, err
	}
	return emails, nil
}

func (a *EmailAdapter) HasMessageID(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := a.db.GetContext(ctx, &one, `SELECT 1 FROM emails WHERE message_id = ?`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.DatabaseError("probe email", err)
	}
	return true, nil
}

func (a *EmailAdapter) loadChildren(ctx context.Context, emails []*domain.Email) error {
	if len(emails) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Email, len(emails))
	ids := make([]int64, 0, len(emails))
	for _, e := range emails {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	query, args, err := sqlx.In(`SELECT id, email_id, kind, address, name, domain FROM recipients WHERE email_id IN (?)`, ids)
	if err != nil {
		return apperr.DatabaseError("build recipients", err)
	}
	var recipients []domain.Recipient
	if err := a.db.SelectContext(ctx, &recipients, a.db.Rebind(query), args...); err != nil {
		return apperr.DatabaseError("load recipients", err)
	}
	for i := range recipients {
		r := recipients[i]
		if parent, ok := byID[r.EmailID]; ok {
			parent.Recipients = append(parent.Recipients, &r)
		}
	}

	query, args, err = sqlx.In(`SELECT id, email_id, filename, content_type, extension, size_bytes, content_id, is_inline FROM attachments WHERE email_id IN (?)`, ids)
	if err != nil {
		return apperr.DatabaseError("build attachments", err)
	}
	var attachments []domain.Attachment
	if err := a.db.SelectContext(ctx, &attachments, a.db.Rebind(query), args...); err != nil {
		return apperr.DatabaseError("load attachments", err)
	}
	for i := range attachments {
		att := attachments[i]
		if parent, ok := byID[att.EmailID]; ok {
			parent.Attachments = append(parent.Attachments, &att)
		}
	}

	return nil
}

// =============================================================================
// Search
// =============================================================================

func (a *EmailAdapter) SearchEmails(ctx context.Context, criteria *domain.SearchCriteria) ([]*domain.Email, error) {
	var (
		sb    strings.Builder
		where []string
		args  []any
	)

	sb.WriteString(`SELECT ` + emailSelectColumns + ` FROM emails e`)

	if criteria.Query != "" {
		sb.WriteString(` JOIN emails_fts ON emails_fts.email_id = e.id`)
		where = append(where, `emails_fts MATCH ?`)
		args = append(args, ftsQuery(criteria.Query))
	}

	if len(criteria.From) > 0 {
		var ors []string
		for _, f := range criteria.From {
			ors = append(ors, `(e.from_address LIKE ? OR e.from_name LIKE ?)`)
			pat := "%" + f + "%"
			args = append(args, pat, pat)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	if len(criteria.To) > 0 {
		conds := repeat(`address LIKE ?`, len(criteria.To))
		where = append(where,
			`e.id IN (SELECT email_id FROM recipients WHERE `+strings.Join(conds, " OR ")+`)`)
		for _, t := range criteria.To {
			args = append(args, "%"+strings.ToLower(t)+"%")
		}
	}

	if criteria.Subject != "" {
		where = append(where, `e.subject LIKE ?`)
		args = append(args, "%"+criteria.Subject+"%")
	}
	if criteria.DateFrom != nil {
		where = append(where, `e.date_sent >= ?`)
		args = append(args, criteria.DateFrom.UTC())
	}
	if criteria.DateTo != nil {
		where = append(where, `e.date_sent <= ?`)
		args = append(args, criteria.DateTo.UTC())
	}
	if criteria.HasAttachments != nil {
		if *criteria.HasAttachments {
			where = append(where, `e.attachment_count > 0`)
		} else {
			where = append(where, `e.attachment_count = 0`)
		}
	}
	if criteria.IsUnread != nil {
		where = append(where, `e.is_read = ?`)
		args = append(args, !*criteria.IsUnread)
	}
	if criteria.IsStarred != nil {
		where = append(where, `e.is_starred = ?`)
		args = append(args, *criteria.IsStarred)
	}
	if criteria.Folder != "" {
		where = append(where, `e.folder = ?`)
		args = append(args, criteria.Folder)
	}
	if len(criteria.Folders) > 0 {
		placeholders := repeat(`?`, len(criteria.Folders))
		where = append(where, `e.folder IN (`+strings.Join(placeholders, ", ")+`)`)
		for _, f := range criteria.Folders {
			args = append(args, f)
		}
	}
	if criteria.ThreadID != "" {
		where = append(where, `e.thread_id = ?`)
		args = append(args, criteria.ThreadID)
	}
	for _, label := range criteria.Labels {
		where = append(where, `e.labels LIKE ?`)
		args = append(args, `%"`+label+`"%`)
	}
	if criteria.MinSize > 0 {
		where = append(where, `e.size_bytes >= ?`)
		args = append(args, criteria.MinSize)
	}
	if criteria.MaxSize > 0 {
		where = append(where, `e.size_bytes <= ?`)
		args = append(args, criteria.MaxSize)
	}

	if len(where) > 0 {
		sb.WriteString(` WHERE ` + strings.Join(where, " AND "))
	}
	sb.WriteString(` ORDER BY e.date_sent DESC`)

	limit := criteria.Limit
	if limit <= 0 {
		limit = 30
	}
	sb.WriteString(` LIMIT ?`)
	args = append(args, limit)
	if criteria.Offset > 0 {
		sb.WriteString(` OFFSET ?`)
		args = append(args, criteria.Offset)
	}

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, apperr.DatabaseError("search emails", err)
	}

	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toEntity())
	}
	if err := a.loadChildren(ctx, emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// ftsQuery quotes each term so user input never hits the FTS5 query
// grammar directly.
func ftsQuery(input string) string {
	terms := strings.Fields(input)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func (a *EmailAdapter) RecentEmails(ctx context.Context, limit, offset int, unreadOnly bool) ([]*domain.Email, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + emailSelectColumns + ` FROM emails e`
	if unreadOnly {
		query += ` WHERE e.is_read = 0`
	}
	query += ` ORDER BY e.date_sent DESC LIMIT ? OFFSET ?`

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, apperr.DatabaseError("recent emails", err)
	}

	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toEntity())
	}
	if err := a.loadChildren(ctx, emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// =============================================================================
// Mutations
// =============================================================================

func (a *EmailAdapter) UpdateEmailFlags(ctx context.Context, messageID string, update *domain.FlagUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		sets []string
		args []any
	)
	if update.IsRead != nil {
		sets = append(sets, `is_read = ?`)
		args = append(args, *update.IsRead)
	}
	if update.IsStarred != nil {
		sets = append(sets, `is_starred = ?`)
		args = append(args, *update.IsStarred)
	}
	if update.IsImportant != nil {
		sets = append(sets, `is_important = ?`)
		args = append(args, *update.IsImportant)
	}
	if update.Labels != nil {
		sets = append(sets, `labels = ?`)
		args = append(args, encodeStrings(*update.Labels))
	}
	if update.Folder != nil {
		sets = append(sets, `folder = ?`)
		args = append(args, *update.Folder)
	}
	sets = append(sets, `updated_at = ?`)
	args = append(args, time.Now().UTC())
	args = append(args, messageID)

	res, err := a.db.ExecContext(ctx,
		`UPDATE emails SET `+strings.Join(sets, ", ")+` WHERE message_id = ?`, args...)
	if err != nil {
		return apperr.DatabaseError("update flags", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("email")
	}
	return nil
}

func (a *EmailAdapter) DeleteEmail(ctx context.Context, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, `DELETE FROM emails WHERE message_id = ?`, messageID)
	if err != nil {
		return apperr.DatabaseError("delete email", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("email")
	}
	return nil
}

// =============================================================================
// Statistics and Sync Bookkeeping
// =============================================================================

func (a *EmailAdapter) Statistics(ctx context.Context) (*domain.MailboxStats, error) {
	stats := &domain.MailboxStats{Folders: make(map[string]int)}

	var counts struct {
		Total           int `db:"total"`
		Unread          int `db:"unread"`
		Starred         int `db:"starred"`
		WithAttachments int `db:"with_attachments"`
	}
	err := a.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_read = 0 THEN 1 ELSE 0 END), 0) AS unread,
			COALESCE(SUM(CASE WHEN is_starred = 1 THEN 1 ELSE 0 END), 0) AS starred,
			COALESCE(SUM(CASE WHEN attachment_count > 0 THEN 1 ELSE 0 END), 0) AS with_attachments
		FROM emails`)
	if err != nil {
		return nil, apperr.DatabaseError("count emails", err)
	}
	stats.TotalEmails = counts.Total
	stats.UnreadEmails = counts.Unread
	stats.StarredEmails = counts.Starred
	stats.WithAttachments = counts.WithAttachments

	rows, err := a.db.QueryxContext(ctx, `SELECT folder, COUNT(*) FROM emails GROUP BY folder`)
	if err != nil {
		return nil, apperr.DatabaseError("count folders", err)
	}
	defer rows.Close()
	for rows.Next() {
		var folder string
		var n int
		if err := rows.Scan(&folder, &n); err != nil {
			return nil, apperr.DatabaseError("scan folder count", err)
		}
		stats.Folders[folder] = n
	}

	if counts.Total > 0 {
		var bounds struct {
			Oldest time.Time `db:"oldest"`
			Newest time.Time `db:"newest"`
		}
		if err := a.db.GetContext(ctx, &bounds,
			`SELECT MIN(date_sent) AS oldest, MAX(date_sent) AS newest FROM emails`); err == nil {
			stats.OldestDateSent = &bounds.Oldest
			stats.NewestDateSent = &bounds.Newest
		}
	}

	if last, err := a.LastSyncRun(ctx); err == nil {
		stats.LastSync = last
	}

	return stats, nil
}

func (a *EmailAdapter) NewestDateSent(ctx context.Context, folder string) (time.Time, error) {
	var newest sql.NullTime
	err := a.db.GetContext(ctx, &newest,
		`SELECT MAX(date_sent) FROM emails WHERE folder = ?`, folder)
	if err != nil {
		return time.Time{}, apperr.DatabaseError("newest date", err)
	}
	if !newest.Valid {
		return time.Time{}, nil
	}
	return newest.Time, nil
}

func (a *EmailAdapter) RecordSyncRun(ctx context.Context, result *domain.SyncResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, `
		INSERT INTO sync_runs (type, folder, synced, skipped, errors, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.Type, result.Folder, result.Synced, result.Skipped, result.Errors,
		result.StartedAt.UTC(), result.CompletedAt.UTC(),
	)
	if err != nil {
		return apperr.DatabaseError("record sync run", err)
	}
	result.ID, _ = res.LastInsertId()
	return nil
}

func (a *EmailAdapter) LastSyncRun(ctx context.Context) (*domain.SyncResult, error) {
	var result domain.SyncResult
	err := a.db.GetContext(ctx, &result, `
		SELECT id, type, folder, synced, skipped, errors, started_at, completed_at
		FROM sync_runs ORDER BY id DESC LIMIT 1`)
	// No history yet is an ordinary state, not an error.
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.DatabaseError("last sync run", err)
	}
	return &result, nil
}
