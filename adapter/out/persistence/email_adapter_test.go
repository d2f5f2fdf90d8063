package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mailflow/core/domain"
	"mailflow/infra/database"
	"mailflow/pkg/apperr"
)

func newTestAdapter(t *testing.T) *EmailAdapter {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewEmailAdapter(db)
}

func testEmail(messageID string) *domain.Email {
	sent := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	return &domain.Email{
		MessageID:    messageID,
		UID:          42,
		Folder:       "INBOX",
		ThreadID:     messageID,
		Subject:      "Quarterly invoice attached",
		FromAddress:  "billing@acme.example",
		FromName:     "Acme Billing",
		BodyText:     "Please find the invoice for Q1 attached.",
		Snippet:      "Please find the invoice for Q1 attached.",
		DateSent:     sent,
		DateReceived: sent.Add(2 * time.Second),
		Labels:       []string{"finance"},
		SizeBytes:    2048,
		Recipients: []*domain.Recipient{
			{Kind: domain.RecipientTo, Address: "me@example.com", Name: "Me", Domain: "example.com"},
			{Kind: domain.RecipientCc, Address: "boss@example.com", Domain: "example.com"},
		},
		Attachments: []*domain.Attachment{
			{Filename: "invoice-q1.pdf", ContentType: "application/pdf", SizeBytes: 1024},
		},
	}
}

func TestUpsertEmailRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	id, err := a.UpsertEmail(ctx, testEmail("<round-trip@acme.example>"))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero row id")
	}

	got, err := a.GetByMessageID(ctx, "<round-trip@acme.example>")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Subject != "Quarterly invoice attached" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.FromAddress != "billing@acme.example" {
		t.Errorf("from = %q", got.FromAddress)
	}
	if len(got.Recipients) != 2 {
		t.Fatalf("recipients = %d, want 2", len(got.Recipients))
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Filename != "invoice-q1.pdf" {
		t.Fatalf("attachments = %+v", got.Attachments)
	}
	if got.AttachmentCount != 1 {
		t.Errorf("attachment_count = %d, want 1", got.AttachmentCount)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "finance" {
		t.Errorf("labels = %v", got.Labels)
	}
}

func TestUpsertEmailFolderClassAndExtension(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	e := testEmail("<junk@acme.example>")
	e.Folder = "[Gmail]/Spam"
	e.IsSpam = true
	e.Attachments[0].Extension = "pdf"
	if _, err := a.UpsertEmail(ctx, e); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := a.GetByMessageID(ctx, "<junk@acme.example>")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsSpam || got.IsTrash {
		t.Errorf("flags = spam:%v trash:%v", got.IsSpam, got.IsTrash)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Extension != "pdf" {
		t.Errorf("attachments = %+v", got.Attachments)
	}

	trashed := testEmail("<gone@acme.example>")
	trashed.Folder = "Trash"
	trashed.IsTrash = true
	if _, err := a.UpsertEmail(ctx, trashed); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = a.GetByMessageID(ctx, "<gone@acme.example>")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsTrash || got.IsSpam {
		t.Errorf("flags = spam:%v trash:%v", got.IsSpam, got.IsTrash)
	}
}

func TestUpsertEmailIdempotent(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	first, err := a.UpsertEmail(ctx, testEmail("<dup@acme.example>"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	update := testEmail("<dup@acme.example>")
	update.Subject = "Quarterly invoice (corrected)"
	update.Recipients = update.Recipients[:1]
	second, err := a.UpsertEmail(ctx, update)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first != second {
		t.Errorf("row id changed on re-upsert: %d -> %d", first, second)
	}

	got, err := a.GetByMessageID(ctx, "<dup@acme.example>")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Subject != "Quarterly invoice (corrected)" {
		t.Errorf("subject not updated: %q", got.Subject)
	}
	if len(got.Recipients) != 1 {
		t.Errorf("recipients not replaced: %d", len(got.Recipients))
	}

	stats, err := a.Statistics(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEmails != 1 {
		t.Errorf("total emails = %d, want 1", stats.TotalEmails)
	}
}

func TestSearchEmails(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	invoice := testEmail("<invoice@acme.example>")
	newsletter := testEmail("<news@letters.example>")
	newsletter.Subject = "Weekly digest"
	newsletter.FromAddress = "digest@letters.example"
	newsletter.BodyText = "Top stories this week"
	newsletter.Snippet = "Top stories this week"
	newsletter.IsRead = true
	newsletter.Attachments = nil
	newsletter.Labels = nil
	newsletter.DateSent = invoice.DateSent.Add(24 * time.Hour)

	for _, e := range []*domain.Email{invoice, newsletter} {
		if _, err := a.UpsertEmail(ctx, e); err != nil {
			t.Fatalf("upsert %s: %v", e.MessageID, err)
		}
	}

	boolPtr := func(v bool) *bool { return &v }

	tests := []struct {
		name     string
		criteria *domain.SearchCriteria
		want     []string
	}{
		{
			name:     "full-text hit on body",
			criteria: &domain.SearchCriteria{Query: "invoice"},
			want:     []string{"<invoice@acme.example>"},
		},
		{
			name:     "full-text hit on attachment filename",
			criteria: &domain.SearchCriteria{Query: "invoice-q1.pdf"},
			want:     []string{"<invoice@acme.example>"},
		},
		{
			name:     "from filter",
			criteria: &domain.SearchCriteria{From: []string{"digest@letters.example"}},
			want:     []string{"<news@letters.example>"},
		},
		{
			name:     "unread only",
			criteria: &domain.SearchCriteria{IsUnread: boolPtr(true)},
			want:     []string{"<invoice@acme.example>"},
		},
		{
			name:     "has attachments",
			criteria: &domain.SearchCriteria{HasAttachments: boolPtr(true)},
			want:     []string{"<invoice@acme.example>"},
		},
		{
			name:     "label filter",
			criteria: &domain.SearchCriteria{Labels: []string{"finance"}},
			want:     []string{"<invoice@acme.example>"},
		},
		{
			name:     "no match",
			criteria: &domain.SearchCriteria{Query: "nonexistent"},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.SearchEmails(ctx, tt.criteria)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if got[i].MessageID != want {
					t.Errorf("result[%d] = %s, want %s", i, got[i].MessageID, want)
				}
			}
		})
	}
}

func TestSearchEmailsDefaultLimit(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < 35; i++ {
		e := testEmail(fmt.Sprintf("<bulk-%d@acme.example>", i))
		e.ThreadID = e.MessageID
		e.DateSent = e.DateSent.Add(time.Duration(i) * time.Minute)
		if _, err := a.UpsertEmail(ctx, e); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	got, err := a.SearchEmails(ctx, &domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 30 {
		t.Errorf("unlimited search returned %d rows, want default page of 30", len(got))
	}

	got, err = a.SearchEmails(ctx, &domain.SearchCriteria{Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("explicit limit returned %d rows", len(got))
	}
}

func TestSearchEmailsAfterDelete(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if _, err := a.UpsertEmail(ctx, testEmail("<gone@acme.example>")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := a.DeleteEmail(ctx, "<gone@acme.example>"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := a.SearchEmails(ctx, &domain.SearchCriteria{Query: "invoice"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("deleted row still indexed: %d results", len(got))
	}

	if _, err := a.GetByMessageID(ctx, "<gone@acme.example>"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateEmailFlags(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if _, err := a.UpsertEmail(ctx, testEmail("<flags@acme.example>")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	read := true
	starred := true
	if err := a.UpdateEmailFlags(ctx, "<flags@acme.example>", &domain.FlagUpdate{
		IsRead:    &read,
		IsStarred: &starred,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := a.GetByMessageID(ctx, "<flags@acme.example>")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsRead || !got.IsStarred {
		t.Errorf("flags not applied: read=%v starred=%v", got.IsRead, got.IsStarred)
	}
	if got.IsImportant {
		t.Error("untouched flag changed")
	}

	labels := []string{"todo", "urgent"}
	if err := a.UpdateEmailFlags(ctx, "<flags@acme.example>", &domain.FlagUpdate{
		Labels: &labels,
	}); err != nil {
		t.Fatalf("label update: %v", err)
	}
	got, _ = a.GetByMessageID(ctx, "<flags@acme.example>")
	if len(got.Labels) != 2 {
		t.Errorf("labels = %v", got.Labels)
	}
	if !got.IsRead {
		t.Error("label update reset read flag")
	}

	err = a.UpdateEmailFlags(ctx, "<missing@acme.example>", &domain.FlagUpdate{IsRead: &read})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found for missing row, got %v", err)
	}
}

func TestRecentEmails(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := testEmail("<recent-" + string(rune('a'+i)) + "@acme.example>")
		e.DateSent = base.Add(time.Duration(i) * time.Hour)
		e.IsRead = i%2 == 0
		if _, err := a.UpsertEmail(ctx, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := a.RecentEmails(ctx, 3, 0, false)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d, want 3", len(got))
	}
	if !got[0].DateSent.After(got[1].DateSent) {
		t.Error("not newest first")
	}

	unread, err := a.RecentEmails(ctx, 10, 0, true)
	if err != nil {
		t.Fatalf("recent unread: %v", err)
	}
	if len(unread) != 2 {
		t.Errorf("unread = %d, want 2", len(unread))
	}

	page2, err := a.RecentEmails(ctx, 3, 3, false)
	if err != nil {
		t.Fatalf("recent offset: %v", err)
	}
	if len(page2) != 2 {
		t.Errorf("page 2 = %d, want 2", len(page2))
	}
}

func TestStatistics(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	invoice := testEmail("<stat-1@acme.example>")
	read := testEmail("<stat-2@acme.example>")
	read.IsRead = true
	read.IsStarred = true
	read.Attachments = nil
	read.Folder = "[Gmail]/All Mail"

	for _, e := range []*domain.Email{invoice, read} {
		if _, err := a.UpsertEmail(ctx, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	stats, err := a.Statistics(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEmails != 2 {
		t.Errorf("total = %d", stats.TotalEmails)
	}
	if stats.UnreadEmails != 1 {
		t.Errorf("unread = %d", stats.UnreadEmails)
	}
	if stats.StarredEmails != 1 {
		t.Errorf("starred = %d", stats.StarredEmails)
	}
	if stats.WithAttachments != 1 {
		t.Errorf("with attachments = %d", stats.WithAttachments)
	}
	if stats.Folders["INBOX"] != 1 {
		t.Errorf("folders = %v", stats.Folders)
	}
}

func TestSyncRunHistory(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	last, err := a.LastSyncRun(ctx)
	if err != nil {
		t.Fatalf("empty history: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil before any run, got %+v", last)
	}

	started := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := a.RecordSyncRun(ctx, &domain.SyncResult{
		Type: domain.SyncManual, Folder: "INBOX",
		Synced: 7, Skipped: 2, Errors: 1,
		StartedAt: started, CompletedAt: started.Add(3 * time.Second),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	last, err = a.LastSyncRun(ctx)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last == nil || last.Synced != 7 || last.Type != domain.SyncManual {
		t.Errorf("last run = %+v", last)
	}
}

func TestFtsQueryQuoting(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"invoice", `"invoice"`},
		{"invoice due", `"invoice" "due"`},
		{`say "hi"`, `"say" """hi"""`},
		{"a-b c:d", `"a-b" "c:d"`},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
