package out

import (
	"context"
	"time"

	"mailflow/core/domain"
)

// FetchedMessage is one raw message pulled from the remote mailbox.
type FetchedMessage struct {
	UID          uint32
	Raw          []byte
	IsSeen       bool
	IsFlagged    bool
	IsDraft      bool
	InternalDate time.Time
	Size         int64
}

// FetchedHeader is envelope-level metadata for one message, pulled
// without its body. The Message-ID has angle brackets stripped so it
// compares directly against mirrored identities.
type FetchedHeader struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	Size      int64
	IsSeen    bool
}

// MailboxProvider is the outbound port to the remote IMAP mailbox. All
// operations share one underlying connection; implementations must
// serialize command traffic and reconnect transparently.
type MailboxProvider interface {
	// SearchUIDs translates opts into a server-side search in folder and
	// returns matching UIDs in server order.
	SearchUIDs(ctx context.Context, folder string, opts *domain.SyncOptions) ([]uint32, error)

	// FetchMessages pulls full raw bodies for uids in batches. Messages
	// that fail individually are absent from the result; the caller
	// accounts for them by comparing lengths.
	FetchMessages(ctx context.Context, folder string, uids []uint32) (map[uint32]*FetchedMessage, error)

	// FetchHeaders pulls envelope metadata for uids without their
	// bodies, far cheaper than FetchMessages. Callers use it to skip
	// messages the mirror already holds.
	FetchHeaders(ctx context.Context, folder string, uids []uint32) (map[uint32]*FetchedHeader, error)

	// FindUIDByMessageID resolves a Message-ID header to its UID in folder.
	FindUIDByMessageID(ctx context.Context, folder, messageID string) (uint32, error)

	// Flag mutations against the live mailbox.
	MarkRead(ctx context.Context, folder string, uid uint32, read bool) error
	Star(ctx context.Context, folder string, uid uint32, starred bool) error
	StoreLabel(ctx context.Context, folder string, uid uint32, label string, add bool) error

	// Archive moves the message out of folder into the archive mailbox.
	Archive(ctx context.Context, folder string, uid uint32) (archiveFolder string, err error)

	// ArchiveFolder names the destination Archive moves into.
	ArchiveFolder() string

	// StartIdle begins push monitoring of folder. onMail receives the
	// count of newly arrived messages; it must not block.
	StartIdle(folder string, onMail func(count uint32)) error
	StopIdle()
	IdleActive() bool

	Close() error
}
