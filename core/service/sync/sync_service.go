// Package sync pulls remote mailbox state into the local mirror.
package sync

import (
	"context"
	"sync"
	"time"

	"mailflow/core/domain"
	"mailflow/core/port/out"
	"mailflow/pkg/apperr"
	"mailflow/pkg/logger"
)

// EventSink receives events for messages the sync newly stored. The
// dispatcher implements it; the indirection keeps this package from
// depending on listener machinery.
type EventSink interface {
	CheckEvent(ctx context.Context, event *domain.Event)
}

// Config tunes sync behavior.
type Config struct {
	DefaultFolder string
	DefaultWindow time.Duration
	IdleOverfetch int
	IdleWindow    time.Duration
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.DefaultFolder == "" {
		out.DefaultFolder = "INBOX"
	}
	if out.DefaultWindow == 0 {
		out.DefaultWindow = 30 * 24 * time.Hour
	}
	if out.IdleOverfetch == 0 {
		out.IdleOverfetch = 5
	}
	if out.IdleWindow == 0 {
		out.IdleWindow = time.Minute
	}
	return &out
}

// Service implements the sync pipeline: server-side search, batched
// fetch, parse, dedupe by Message-ID, store, emit events.
type Service struct {
	store   out.EmailRepository
	mailbox out.MailboxProvider
	cfg     *Config
	log     *logger.Logger

	mu   sync.Mutex
	sink EventSink

	runMu sync.Mutex
}

func New(store out.EmailRepository, mailbox out.MailboxProvider, cfg *Config, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		mailbox: mailbox,
		cfg:     cfg.withDefaults(),
		log:     log.WithComponent("sync"),
	}
}

// SetEventSink wires the dispatcher in after construction. Events are
// dropped silently until a sink is set.
func (s *Service) SetEventSink(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Service) emit(ctx context.Context, event *domain.Event) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.CheckEvent(ctx, event)
	}
}

// SyncEmails runs one sync pass. Only one run may be in flight; a
// second caller gets a conflict instead of queueing.
func (s *Service) SyncEmails(ctx context.Context, opts *domain.SyncOptions) (*domain.SyncResult, error) {
	if !s.runMu.TryLock() {
		return nil, apperr.Conflict("sync already running")
	}
	defer s.runMu.Unlock()

	if opts == nil {
		opts = &domain.SyncOptions{}
	}
	if opts.Folder == "" {
		opts.Folder = s.cfg.DefaultFolder
	}
	if opts.Type == "" {
		opts.Type = domain.SyncManual
	}
	// Bound unfiltered runs to the default window. An explicit query is
	// authoritative and gets no implicit date filter.
	if opts.GmailQuery == "" && opts.Since == nil && opts.Before == nil {
		since := time.Now().Add(-s.cfg.DefaultWindow)
		opts.Since = &since
	}

	result := &domain.SyncResult{
		Type:      opts.Type,
		Folder:    opts.Folder,
		StartedAt: time.Now().UTC(),
	}

	// An explicit zero limit is a complete run that touches nothing.
	if opts.Limit != nil && *opts.Limit <= 0 {
		result.CompletedAt = time.Now().UTC()
		return result, nil
	}

	uids, err := s.mailbox.SearchUIDs(ctx, opts.Folder, opts)
	if err != nil {
		return nil, err
	}

	// UIDs arrive in ascending server order; the bound keeps the newest.
	if opts.Limit != nil && len(uids) > *opts.Limit {
		uids = uids[len(uids)-*opts.Limit:]
	}

	s.log.WithFields(map[string]any{
		"folder": opts.Folder, "matches": len(uids), "type": string(opts.Type),
	}).Info("sync run started")

	uids = s.prefilterKnown(ctx, opts.Folder, uids, result)

	fetched, fetchErr := s.mailbox.FetchMessages(ctx, opts.Folder, uids)
	if fetchErr != nil {
		s.log.WithError(fetchErr).Warn("fetch incomplete, processing partial results")
	}

	for _, uid := range uids {
		msg, ok := fetched[uid]
		if !ok {
			result.Errors++
			continue
		}

		email, err := ParseMessage(opts.Folder, msg)
		if err != nil {
			s.log.WithError(err).WithField("uid", uid).Warn("message parse failed")
			result.Errors++
			continue
		}

		exists, err := s.store.HasMessageID(ctx, email.MessageID)
		if err != nil {
			result.Errors++
			continue
		}
		if exists {
			result.Skipped++
			continue
		}

		// Attachment presence can only be judged after parsing.
		if opts.HasAttachments != nil && email.HasAttachments() != *opts.HasAttachments {
			result.Skipped++
			continue
		}

		if _, err := s.store.UpsertEmail(ctx, email); err != nil {
			s.log.WithError(err).WithField("message_id", email.MessageID).Error("store failed")
			result.Errors++
			continue
		}
		result.Synced++

		kind := domain.EventEmailReceived
		if email.IsSent {
			kind = domain.EventEmailSent
		}
		s.emit(ctx, domain.NewEmailEvent(kind, email))
	}

	result.CompletedAt = time.Now().UTC()
	if err := s.store.RecordSyncRun(ctx, result); err != nil {
		s.log.WithError(err).Warn("sync run not recorded")
	}

	s.log.WithFields(map[string]any{
		"synced": result.Synced, "skipped": result.Skipped, "errors": result.Errors,
	}).WithDuration(result.Duration()).Info("sync run finished")

	if fetchErr != nil {
		return result, fetchErr
	}
	return result, nil
}

// prefilterKnown drops UIDs whose Message-ID is already mirrored, using
// a cheap envelope-only fetch before the full bodies are pulled. A
// failed or incomplete header fetch degrades to fetching everything;
// the per-message dedupe check below still holds.
func (s *Service) prefilterKnown(ctx context.Context, folder string, uids []uint32, result *domain.SyncResult) []uint32 {
	if len(uids) == 0 {
		return uids
	}

	headers, err := s.mailbox.FetchHeaders(ctx, folder, uids)
	if err != nil {
		s.log.WithError(err).Warn("header prefetch failed, fetching full bodies")
	}
	if len(headers) == 0 {
		return uids
	}

	keep := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		h, ok := headers[uid]
		if !ok || h.MessageID == "" {
			keep = append(keep, uid)
			continue
		}
		exists, err := s.store.HasMessageID(ctx, h.MessageID)
		if err != nil {
			keep = append(keep, uid)
			continue
		}
		if exists {
			result.Skipped++
			continue
		}
		keep = append(keep, uid)
	}
	return keep
}

// SyncNew resumes from the local cursor: everything the server received
// after the newest mirrored message is pulled in one incremental run.
// An empty mirror falls back to the default lookback window.
func (s *Service) SyncNew(ctx context.Context) (*domain.SyncResult, error) {
	cursor, err := s.store.NewestDateSent(ctx, s.cfg.DefaultFolder)
	if err != nil {
		return nil, err
	}

	opts := &domain.SyncOptions{
		Folder: s.cfg.DefaultFolder,
		Type:   domain.SyncIncremental,
	}
	if !cursor.IsZero() {
		// Server-side SINCE has day granularity; the dedupe pass absorbs
		// the overlap.
		since := cursor
		opts.Since = &since
	}
	return s.SyncEmails(ctx, opts)
}

// SyncRecent is the IDLE re-entry path: the server announced count new
// messages, so pull a narrow recent window slightly wider than the
// announcement to absorb races.
func (s *Service) SyncRecent(ctx context.Context, count uint32) (*domain.SyncResult, error) {
	since := time.Now().Add(-s.cfg.IdleWindow)
	limit := int(count) + s.cfg.IdleOverfetch
	return s.SyncEmails(ctx, &domain.SyncOptions{
		Folder: s.cfg.DefaultFolder,
		Since:  &since,
		Limit:  &limit,
		Type:   domain.SyncIdle,
	})
}

// LastRun reports the most recent recorded sync.
func (s *Service) LastRun(ctx context.Context) (*domain.SyncResult, error) {
	return s.store.LastSyncRun(ctx)
}
