package listener

import (
	"context"
	"fmt"
	"time"

	"mailflow/core/domain"
	"mailflow/core/port/out"
	"mailflow/core/service/email"
	"mailflow/pkg/apperr"
	"mailflow/pkg/logger"
)

// =============================================================================
// Shared fakes
// =============================================================================

type fakeRepo struct {
	emails      map[string]*domain.Email
	flagUpdates []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{emails: make(map[string]*domain.Email)}
}

func (f *fakeRepo) UpsertEmail(_ context.Context, e *domain.Email) (int64, error) {
	f.emails[e.MessageID] = e
	return 1, nil
}

func (f *fakeRepo) GetByMessageID(_ context.Context, id string) (*domain.Email, error) {
	e, ok := f.emails[id]
	if !ok {
		return nil, apperr.NotFound("email")
	}
	return e, nil
}

func (f *fakeRepo) GetByMessageIDs(_ context.Context, ids []string) ([]*domain.Email, error) {
	var res []*domain.Email
	for _, id := range ids {
		if e, ok := f.emails[id]; ok {
			res = append(res, e)
		}
	}
	return res, nil
}

func (f *fakeRepo) HasMessageID(_ context.Context, id string) (bool, error) {
	_, ok := f.emails[id]
	return ok, nil
}

func (f *fakeRepo) SearchEmails(context.Context, *domain.SearchCriteria) ([]*domain.Email, error) {
	return nil, nil
}

func (f *fakeRepo) RecentEmails(context.Context, int, int, bool) ([]*domain.Email, error) {
	return nil, nil
}

func (f *fakeRepo) UpdateEmailFlags(_ context.Context, id string, update *domain.FlagUpdate) error {
	e, ok := f.emails[id]
	if !ok {
		return apperr.NotFound("email")
	}
	if update.IsRead != nil {
		e.IsRead = *update.IsRead
	}
	if update.IsStarred != nil {
		e.IsStarred = *update.IsStarred
	}
	if update.Labels != nil {
		e.Labels = *update.Labels
	}
	if update.Folder != nil {
		e.Folder = *update.Folder
	}
	f.flagUpdates = append(f.flagUpdates, id)
	return nil
}

func (f *fakeRepo) DeleteEmail(context.Context, string) error { return nil }

func (f *fakeRepo) Statistics(context.Context) (*domain.MailboxStats, error) {
	return &domain.MailboxStats{TotalEmails: len(f.emails)}, nil
}

func (f *fakeRepo) NewestDateSent(context.Context, string) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeRepo) RecordSyncRun(context.Context, *domain.SyncResult) error { return nil }

func (f *fakeRepo) LastSyncRun(context.Context) (*domain.SyncResult, error) { return nil, nil }

type fakeMailbox struct {
	failOps bool
	marked  []string
	starred []string
	labeled []string
	moved   []string
}

func (f *fakeMailbox) SearchUIDs(context.Context, string, *domain.SyncOptions) ([]uint32, error) {
	return nil, nil
}

func (f *fakeMailbox) FetchMessages(context.Context, string, []uint32) (map[uint32]*out.FetchedMessage, error) {
	return nil, nil
}

func (f *fakeMailbox) FetchHeaders(context.Context, string, []uint32) (map[uint32]*out.FetchedHeader, error) {
	return nil, nil
}

func (f *fakeMailbox) FindUIDByMessageID(_ context.Context, _ string, messageID string) (uint32, error) {
	return 99, nil
}

func (f *fakeMailbox) remoteErr(op string) error {
	if f.failOps {
		return apperr.RemoteOpError(op, fmt.Errorf("server said no"))
	}
	return nil
}

func (f *fakeMailbox) MarkRead(_ context.Context, _ string, _ uint32, read bool) error {
	if err := f.remoteErr("mark read"); err != nil {
		return err
	}
	f.marked = append(f.marked, fmt.Sprintf("read=%v", read))
	return nil
}

func (f *fakeMailbox) Star(_ context.Context, _ string, _ uint32, starred bool) error {
	if err := f.remoteErr("star"); err != nil {
		return err
	}
	f.starred = append(f.starred, fmt.Sprintf("starred=%v", starred))
	return nil
}

func (f *fakeMailbox) StoreLabel(_ context.Context, _ string, _ uint32, label string, add bool) error {
	if err := f.remoteErr("store label"); err != nil {
		return err
	}
	f.labeled = append(f.labeled, fmt.Sprintf("%s=%v", label, add))
	return nil
}

func (f *fakeMailbox) Archive(_ context.Context, _ string, _ uint32) (string, error) {
	if err := f.remoteErr("archive"); err != nil {
		return "", err
	}
	f.moved = append(f.moved, "archived")
	return "Archive", nil
}

func (f *fakeMailbox) ArchiveFolder() string { return "Archive" }

func (f *fakeMailbox) StartIdle(string, func(uint32)) error { return nil }
func (f *fakeMailbox) StopIdle()                            {}
func (f *fakeMailbox) IdleActive() bool                     { return false }
func (f *fakeMailbox) Close() error                         { return nil }

type fakeRealtime struct {
	notifications []*domain.Notification
	errors        []string
	updates       [][]*domain.ListenerConfig
}

func (f *fakeRealtime) PushNotification(n *domain.Notification) {
	f.notifications = append(f.notifications, n)
}

func (f *fakeRealtime) PushListenersUpdate(configs []*domain.ListenerConfig) {
	f.updates = append(f.updates, configs)
}

func (f *fakeRealtime) PushError(message string) {
	f.errors = append(f.errors, message)
}

func (f *fakeRealtime) ConnectedCount() int { return 0 }

type fakeAgent struct {
	result map[string]any
	err    error
	calls  []*out.AgentCall
}

func (f *fakeAgent) CallAgent(_ context.Context, call *out.AgentCall) (map[string]any, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	repo     *fakeRepo
	mailbox  *fakeMailbox
	realtime *fakeRealtime
	agent    *fakeAgent
	factory  *ContextFactory
}

func newHarness() *harness {
	repo := newFakeRepo()
	mailbox := &fakeMailbox{}
	rt := &fakeRealtime{}
	ag := &fakeAgent{result: map[string]any{}}
	log := logger.New(logger.Config{Level: logger.LevelError})

	return &harness{
		repo:     repo,
		mailbox:  mailbox,
		realtime: rt,
		agent:    ag,
		factory: &ContextFactory{
			Emails:   email.New(repo, mailbox, log),
			Store:    repo,
			Realtime: rt,
			Agent:    ag,
			Log:      log,
		},
	}
}

func inboxEmail(messageID string) *domain.Email {
	return &domain.Email{
		MessageID:   messageID,
		UID:         7,
		Folder:      "INBOX",
		Subject:     "Invoice overdue",
		FromAddress: "billing@acme.example",
		FromName:    "Acme Billing",
		BodyText:    "Your invoice is overdue. Please pay.",
		Snippet:     "Your invoice is overdue.",
	}
}

func mustCompile(data string) (*Module, error) {
	return compileRule("test.yaml", "test.yaml", []byte(data))
}
