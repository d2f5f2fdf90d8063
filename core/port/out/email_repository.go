// Package out defines outbound ports (driven ports) for the application.
// These interfaces represent dependencies that the application needs.
package out

import (
	"context"
	"time"

	"mailflow/core/domain"
)

// EmailRepository is the outbound port for the local mail mirror.
// Implementations must serialize writes; reads may run concurrently.
type EmailRepository interface {
	// Upsert writes a message keyed by Message-ID, replacing recipients,
	// attachments and the full-text row atomically. Returns the row id.
	UpsertEmail(ctx context.Context, email *domain.Email) (int64, error)

	GetByMessageID(ctx context.Context, messageID string) (*domain.Email, error)
	GetByMessageIDs(ctx context.Context, messageIDs []string) ([]*domain.Email, error)
	HasMessageID(ctx context.Context, messageID string) (bool, error)

	SearchEmails(ctx context.Context, criteria *domain.SearchCriteria) ([]*domain.Email, error)
	RecentEmails(ctx context.Context, limit, offset int, unreadOnly bool) ([]*domain.Email, error)

	// UpdateEmailFlags applies a partial mutation to the local row only.
	UpdateEmailFlags(ctx context.Context, messageID string, update *domain.FlagUpdate) error
	DeleteEmail(ctx context.Context, messageID string) error

	Statistics(ctx context.Context) (*domain.MailboxStats, error)
	NewestDateSent(ctx context.Context, folder string) (time.Time, error)

	RecordSyncRun(ctx context.Context, result *domain.SyncResult) error
	LastSyncRun(ctx context.Context) (*domain.SyncResult, error)
}
