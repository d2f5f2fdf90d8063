package provider

import (
	"context"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"mailflow/pkg/apperr"
)

// storeFlags applies a silent flag mutation to one message.
func (a *IMAPAdapter) storeFlags(ctx context.Context, folder string, uid uint32, op imap.StoreFlagsOp, flags ...imap.Flag) error {
	return a.do(ctx, func(conn *imapclient.Client) error {
		if err := a.selectFolder(conn, folder, false); err != nil {
			return err
		}

		uidSet := imap.UIDSet{}
		uidSet.AddNum(imap.UID(uid))

		store := &imap.StoreFlags{
			Op:     op,
			Flags:  flags,
			Silent: true,
		}
		if _, err := conn.Store(uidSet, store, nil).Collect(); err != nil {
			return apperr.RemoteOpError("store flags", err)
		}
		return nil
	})
}

func (a *IMAPAdapter) MarkRead(ctx context.Context, folder string, uid uint32, read bool) error {
	op := imap.StoreFlagsAdd
	if !read {
		op = imap.StoreFlagsDel
	}
	return a.storeFlags(ctx, folder, uid, op, imap.FlagSeen)
}

func (a *IMAPAdapter) Star(ctx context.Context, folder string, uid uint32, starred bool) error {
	op := imap.StoreFlagsAdd
	if !starred {
		op = imap.StoreFlagsDel
	}
	return a.storeFlags(ctx, folder, uid, op, imap.FlagFlagged)
}

// StoreLabel sets or clears a label as an IMAP keyword flag. Keywords
// are the portable label mechanism; Gmail mirrors them into its label
// store for accounts that allow user flags.
func (a *IMAPAdapter) StoreLabel(ctx context.Context, folder string, uid uint32, label string, add bool) error {
	op := imap.StoreFlagsAdd
	if !add {
		op = imap.StoreFlagsDel
	}
	return a.storeFlags(ctx, folder, uid, op, imap.Flag(label))
}

// Archive moves the message out of folder into the configured archive
// mailbox and returns the destination name.
func (a *IMAPAdapter) Archive(ctx context.Context, folder string, uid uint32) (string, error) {
	dest := a.cfg.ArchiveFolder

	err := a.do(ctx, func(conn *imapclient.Client) error {
		if err := a.selectFolder(conn, folder, false); err != nil {
			return err
		}

		uidSet := imap.UIDSet{}
		uidSet.AddNum(imap.UID(uid))

		if _, err := conn.Move(uidSet, dest).Wait(); err != nil {
			return apperr.RemoteOpError("move to "+dest, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	a.log.Info().Str("folder", folder).Uint32("uid", uid).Str("dest", dest).Msg("message archived")
	return dest, nil
}

// ArchiveFolder names the destination Archive moves into.
func (a *IMAPAdapter) ArchiveFolder() string {
	return a.cfg.ArchiveFolder
}
