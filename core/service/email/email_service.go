// Package email exposes mirror reads and coherent remote+local
// mutations.
package email

import (
	"context"

	"mailflow/core/domain"
	"mailflow/core/port/out"
	"mailflow/pkg/logger"
)

// Service mediates between the local mirror and the live mailbox. A
// mutation is applied remotely first; the local row follows. If the
// local write fails after the remote op succeeded, the divergence is
// logged and tolerated since the next sync repairs it.
//
// Mutation methods return the events that occurred rather than
// dispatching them, so callers decide whether listeners fire. The HTTP
// layer dispatches; listener capability contexts discard them, which
// keeps listener actions from re-triggering listeners.
type Service struct {
	store   out.EmailRepository
	mailbox out.MailboxProvider
	log     *logger.Logger
}

func New(store out.EmailRepository, mailbox out.MailboxProvider, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		mailbox: mailbox,
		log:     log.WithComponent("email"),
	}
}

// =============================================================================
// Reads
// =============================================================================

func (s *Service) GetByMessageID(ctx context.Context, messageID string) (*domain.Email, error) {
	return s.store.GetByMessageID(ctx, messageID)
}

func (s *Service) Search(ctx context.Context, criteria *domain.SearchCriteria) ([]*domain.Email, error) {
	return s.store.SearchEmails(ctx, criteria)
}

func (s *Service) Recent(ctx context.Context, limit, offset int, unreadOnly bool) ([]*domain.Email, error) {
	return s.store.RecentEmails(ctx, limit, offset, unreadOnly)
}

func (s *Service) Batch(ctx context.Context, messageIDs []string) ([]*domain.Email, error) {
	return s.store.GetByMessageIDs(ctx, messageIDs)
}

func (s *Service) Statistics(ctx context.Context) (*domain.MailboxStats, error) {
	return s.store.Statistics(ctx)
}

// =============================================================================
// Mutations
// =============================================================================

// resolveUID finds the provider-side handle for a mirrored message.
// Legacy rows without a recorded UID fall back to a Message-ID search.
func (s *Service) resolveUID(ctx context.Context, email *domain.Email) (uint32, error) {
	if email.UID != 0 {
		return email.UID, nil
	}
	return s.mailbox.FindUIDByMessageID(ctx, email.Folder, email.MessageID)
}

func (s *Service) localUpdate(ctx context.Context, messageID string, update *domain.FlagUpdate) {
	if err := s.store.UpdateEmailFlags(ctx, messageID, update); err != nil {
		s.log.WithError(err).WithField("message_id", messageID).
			Warn("local mirror diverged from remote, next sync repairs it")
	}
}

// UpdateFlags applies a partial flag mutation remotely and then
// locally, returning the events the transition produced.
func (s *Service) UpdateFlags(ctx context.Context, messageID string, update *domain.FlagUpdate) ([]*domain.Event, error) {
	if update == nil || update.IsEmpty() {
		return nil, nil
	}

	email, err := s.store.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	uid, err := s.resolveUID(ctx, email)
	if err != nil {
		return nil, err
	}

	var events []*domain.Event

	if update.IsRead != nil && *update.IsRead != email.IsRead {
		if err := s.mailbox.MarkRead(ctx, email.Folder, uid, *update.IsRead); err != nil {
			return events, err
		}
		email.IsRead = *update.IsRead
	}

	if update.IsStarred != nil && *update.IsStarred != email.IsStarred {
		if err := s.mailbox.Star(ctx, email.Folder, uid, *update.IsStarred); err != nil {
			return events, err
		}
		email.IsStarred = *update.IsStarred
		if email.IsStarred {
			events = append(events, domain.NewEmailEvent(domain.EventEmailStarred, email))
		}
	}

	if update.Labels != nil {
		added, removed := diffLabels(email.Labels, *update.Labels)
		for _, label := range added {
			if err := s.mailbox.StoreLabel(ctx, email.Folder, uid, label, true); err != nil {
				return events, err
			}
			ev := domain.NewEmailEvent(domain.EventEmailLabeled, email)
			ev.Label = label
			events = append(events, ev)
		}
		for _, label := range removed {
			if err := s.mailbox.StoreLabel(ctx, email.Folder, uid, label, false); err != nil {
				return events, err
			}
		}
		email.Labels = *update.Labels
	}

	// IsImportant is mirror-only state, no remote op exists for it.
	if update.IsImportant != nil {
		email.IsImportant = *update.IsImportant
	}

	s.localUpdate(ctx, messageID, update)
	return events, nil
}

// Archive moves the message into the archive mailbox and updates the
// mirror's folder column.
func (s *Service) Archive(ctx context.Context, messageID string) (*domain.Event, error) {
	email, err := s.store.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	// Already in the archive mailbox: nothing to move, no event.
	if email.Folder == s.mailbox.ArchiveFolder() {
		return nil, nil
	}

	uid, err := s.resolveUID(ctx, email)
	if err != nil {
		return nil, err
	}

	dest, err := s.mailbox.Archive(ctx, email.Folder, uid)
	if err != nil {
		return nil, err
	}

	email.Folder = dest
	email.UID = 0 // the move assigned a new UID we do not know
	s.localUpdate(ctx, messageID, &domain.FlagUpdate{Folder: &dest})

	return domain.NewEmailEvent(domain.EventEmailArchived, email), nil
}

// diffLabels computes the sets that turn current into desired.
func diffLabels(current, desired []string) (added, removed []string) {
	have := make(map[string]bool, len(current))
	for _, l := range current {
		have[l] = true
	}
	want := make(map[string]bool, len(desired))
	for _, l := range desired {
		want[l] = true
		if !have[l] {
			added = append(added, l)
		}
	}
	for _, l := range current {
		if !want[l] {
			removed = append(removed, l)
		}
	}
	return added, removed
}
