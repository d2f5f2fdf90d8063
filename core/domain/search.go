package domain

import "time"

// SearchCriteria addresses the local mirror. Query runs against the
// full-text index; the remaining fields are structured filters ANDed
// together.
type SearchCriteria struct {
	Query   string   `json:"query,omitempty"`
	From    []string `json:"from,omitempty"`
	To      []string `json:"to,omitempty"`
	Subject string   `json:"subject,omitempty"`

	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	HasAttachments *bool `json:"has_attachments,omitempty"`
	IsUnread       *bool `json:"is_unread,omitempty"`
	IsStarred      *bool `json:"is_starred,omitempty"`

	Folder   string   `json:"folder,omitempty"`
	Folders  []string `json:"folders,omitempty"`
	ThreadID string   `json:"thread_id,omitempty"`
	Labels   []string `json:"labels,omitempty"`

	MinSize int64 `json:"min_size,omitempty"`
	MaxSize int64 `json:"max_size,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// SyncType names how a sync run was initiated.
type SyncType string

const (
	SyncManual      SyncType = "manual"
	SyncIdle        SyncType = "idle"
	SyncIncremental SyncType = "incremental"
)

// SyncOptions addresses the remote mailbox for one sync run.
// GmailQuery is authoritative: when set, every other filter field is
// ignored and the query is forwarded to the server as free-text search.
type SyncOptions struct {
	Folder  string   `json:"folder,omitempty"`
	From    []string `json:"from,omitempty"`
	To      []string `json:"to,omitempty"`
	Subject string   `json:"subject,omitempty"`

	Since  *time.Time `json:"since,omitempty"`
	Before *time.Time `json:"before,omitempty"`

	UnreadOnly     bool  `json:"unread_only,omitempty"`
	StarredOnly    bool  `json:"starred_only,omitempty"`
	HasAttachments *bool `json:"has_attachments,omitempty"`

	MinSize int64 `json:"min_size,omitempty"`
	MaxSize int64 `json:"max_size,omitempty"`

	GmailQuery string `json:"gmail_query,omitempty"`

	// Limit bounds how many matches are processed, keeping the newest.
	// Nil means unbounded; an explicit zero syncs nothing.
	Limit *int `json:"limit,omitempty"`

	// Accepted for API compatibility; single-folder runs never consult it.
	ExcludeFolders []string `json:"exclude_folders,omitempty"`

	Type SyncType `json:"-"`
}

// SyncResult is the outcome of one sync run.
type SyncResult struct {
	ID          int64     `json:"id,omitempty" db:"id"`
	Type        SyncType  `json:"type" db:"type"`
	Folder      string    `json:"folder" db:"folder"`
	Synced      int       `json:"synced" db:"synced"`
	Skipped     int       `json:"skipped" db:"skipped"`
	Errors      int       `json:"errors" db:"errors"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// Duration is the wall time the run took.
func (r *SyncResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
