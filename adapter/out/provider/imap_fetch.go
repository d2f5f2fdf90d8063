package provider

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"mailflow/core/port/out"
)

// Envelope-only fetches are cheap, so header batches run much larger
// than body batches.
const headerBatchSize = 30

// FetchMessages pulls full raw bodies for uids in batches over one
// selected folder. Messages are streamed item by item instead of
// collected, so a dead connection yields partial results rather than a
// hang. A message that fails individually is logged and absent from
// the returned map.
func (a *IMAPAdapter) FetchMessages(ctx context.Context, folder string, uids []uint32) (map[uint32]*out.FetchedMessage, error) {
	results := make(map[uint32]*out.FetchedMessage, len(uids))
	if len(uids) == 0 {
		return results, nil
	}

	batchSize := a.cfg.FetchBatchSize
	for start := 0; start < len(uids); start += batchSize {
		end := start + batchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[start:end]

		err := a.do(ctx, func(conn *imapclient.Client) error {
			if err := a.selectFolder(conn, folder, true); err != nil {
				return err
			}
			return a.fetchBatch(ctx, conn, batch, results)
		})
		if err != nil {
			// Partial results are still useful to the caller.
			a.log.Warn().Err(err).Int("fetched", len(results)).Int("requested", len(uids)).
				Msg("fetch aborted, returning partial results")
			return results, err
		}
	}

	return results, nil
}

// FetchHeaders pulls envelope metadata for uids without their bodies.
// Message-IDs are stripped of angle brackets so they compare directly
// against mirrored identities.
func (a *IMAPAdapter) FetchHeaders(ctx context.Context, folder string, uids []uint32) (map[uint32]*out.FetchedHeader, error) {
	results := make(map[uint32]*out.FetchedHeader, len(uids))
	if len(uids) == 0 {
		return results, nil
	}

	for start := 0; start < len(uids); start += headerBatchSize {
		end := start + headerBatchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[start:end]

		err := a.do(ctx, func(conn *imapclient.Client) error {
			if err := a.selectFolder(conn, folder, true); err != nil {
				return err
			}
			return a.fetchHeaderBatch(ctx, conn, batch, results)
		})
		if err != nil {
			a.log.Warn().Err(err).Int("fetched", len(results)).Int("requested", len(uids)).
				Msg("header fetch aborted, returning partial results")
			return results, err
		}
	}

	return results, nil
}

func (a *IMAPAdapter) fetchHeaderBatch(ctx context.Context, conn *imapclient.Client, uids []uint32, results map[uint32]*out.FetchedHeader) error {
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	options := &imap.FetchOptions{
		UID:        true,
		Envelope:   true,
		Flags:      true,
		RFC822Size: true,
	}

	fetchCmd := conn.Fetch(uidSet, options)
	defer fetchCmd.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		header := &out.FetchedHeader{}

		for {
			item := msg.Next()
			if item == nil {
				break
			}

			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				header.UID = uint32(data.UID)

			case imapclient.FetchItemDataEnvelope:
				if data.Envelope == nil {
					break
				}
				header.MessageID = strings.Trim(data.Envelope.MessageID, "<>")
				header.Subject = data.Envelope.Subject
				header.Date = data.Envelope.Date
				if len(data.Envelope.From) > 0 {
					header.From = strings.ToLower(data.Envelope.From[0].Addr())
				}

			case imapclient.FetchItemDataFlags:
				for _, flag := range data.Flags {
					if flag == imap.FlagSeen {
						header.IsSeen = true
					}
				}

			case imapclient.FetchItemDataRFC822Size:
				header.Size = data.Size
			}
		}

		if header.UID == 0 {
			continue
		}
		results[header.UID] = header
	}

	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("header fetch close: %w", err)
	}
	return nil
}

func (a *IMAPAdapter) fetchBatch(ctx context.Context, conn *imapclient.Client, uids []uint32, results map[uint32]*out.FetchedMessage) error {
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	options := &imap.FetchOptions{
		UID:          true,
		Flags:        true,
		InternalDate: true,
		RFC822Size:   true,
		BodySection: []*imap.FetchItemBodySection{
			{Specifier: imap.PartSpecifierNone, Peek: true},
		},
	}

	fetchCmd := conn.Fetch(uidSet, options)
	defer fetchCmd.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		fetched := &out.FetchedMessage{}
		var tooLarge bool

		for {
			item := msg.Next()
			if item == nil {
				break
			}

			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				fetched.UID = uint32(data.UID)

			case imapclient.FetchItemDataFlags:
				for _, flag := range data.Flags {
					switch flag {
					case imap.FlagSeen:
						fetched.IsSeen = true
					case imap.FlagFlagged:
						fetched.IsFlagged = true
					case imap.FlagDraft:
						fetched.IsDraft = true
					}
				}

			case imapclient.FetchItemDataInternalDate:
				fetched.InternalDate = data.Time

			case imapclient.FetchItemDataRFC822Size:
				fetched.Size = data.Size

			case imapclient.FetchItemDataBodySection:
				if data.Literal == nil {
					break
				}
				// One byte past the cap distinguishes "exactly at the
				// limit" from "over it".
				raw, err := io.ReadAll(io.LimitReader(data.Literal, a.cfg.MaxMessageBytes+1))
				if err != nil {
					a.log.Warn().Err(err).Uint32("uid", fetched.UID).
						Msg("body literal read failed, dropping message")
					fetched.Raw = nil
					break
				}
				if int64(len(raw)) > a.cfg.MaxMessageBytes {
					tooLarge = true
					break
				}
				fetched.Raw = raw
			}
		}

		if fetched.UID == 0 {
			continue
		}
		if tooLarge {
			a.log.Warn().Uint32("uid", fetched.UID).Int64("max_bytes", a.cfg.MaxMessageBytes).
				Msg("message exceeds size cap, skipped")
			continue
		}
		if fetched.Raw == nil {
			a.log.Warn().Uint32("uid", fetched.UID).Msg("no body section in fetch response")
			continue
		}
		if fetched.Size == 0 {
			fetched.Size = int64(len(fetched.Raw))
		}
		results[fetched.UID] = fetched
	}

	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("fetch close: %w", err)
	}
	return nil
}
