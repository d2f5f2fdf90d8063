package provider

import (
	"context"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"mailflow/core/domain"
	"mailflow/pkg/apperr"
)

// buildSearchCriteria translates sync options into an IMAP SEARCH tree.
// GmailQuery is authoritative: when present it becomes a bare TEXT
// search and every other filter is dropped.
func buildSearchCriteria(opts *domain.SyncOptions) *imap.SearchCriteria {
	if opts.GmailQuery != "" {
		return &imap.SearchCriteria{Text: []string{opts.GmailQuery}}
	}

	criteria := &imap.SearchCriteria{}

	if opts.Since != nil {
		criteria.Since = opts.Since.UTC()
	}
	if opts.Before != nil {
		criteria.Before = opts.Before.UTC()
	}

	if len(opts.From) > 0 {
		appendOr(criteria, opts.From, func(v string) imap.SearchCriteria {
			return imap.SearchCriteria{
				Header: []imap.SearchCriteriaHeaderField{{Key: "FROM", Value: v}},
			}
		})
	}
	if len(opts.To) > 0 {
		appendOr(criteria, opts.To, func(v string) imap.SearchCriteria {
			return imap.SearchCriteria{
				Header: []imap.SearchCriteriaHeaderField{{Key: "TO", Value: v}},
			}
		})
	}
	if opts.Subject != "" {
		criteria.Header = append(criteria.Header,
			imap.SearchCriteriaHeaderField{Key: "SUBJECT", Value: opts.Subject})
	}

	if opts.UnreadOnly {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}
	if opts.StarredOnly {
		criteria.Flag = append(criteria.Flag, imap.FlagFlagged)
	}

	if opts.MinSize > 0 {
		criteria.Larger = opts.MinSize
	}
	if opts.MaxSize > 0 {
		criteria.Smaller = opts.MaxSize
	}

	return criteria
}

// appendOr ANDs a disjunction of per-value criteria onto base.
// go-imap's Or field is [][2]SearchCriteria: each pair is OR(a, b), so
// a list of n values becomes a right-nested chain.
func appendOr(base *imap.SearchCriteria, values []string, build func(string) imap.SearchCriteria) {
	chain := build(values[len(values)-1])
	for i := len(values) - 2; i >= 0; i-- {
		chain = imap.SearchCriteria{
			Or: [][2]imap.SearchCriteria{{build(values[i]), chain}},
		}
	}
	base.And(&chain)
}

// SearchUIDs runs a server-side UID SEARCH in folder and returns the
// matches in server order.
func (a *IMAPAdapter) SearchUIDs(ctx context.Context, folder string, opts *domain.SyncOptions) ([]uint32, error) {
	var uids []uint32

	err := a.do(ctx, func(conn *imapclient.Client) error {
		if err := a.selectFolder(conn, folder, true); err != nil {
			return err
		}

		data, err := waitSearch(ctx, conn.UIDSearch(buildSearchCriteria(opts), nil))
		if err != nil {
			return apperr.RemoteOpError("uid search", err)
		}
		for _, uid := range data.AllUIDs() {
			uids = append(uids, uint32(uid))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.log.Debug().Str("folder", folder).Int("matches", len(uids)).Msg("uid search complete")
	return uids, nil
}

// FindUIDByMessageID resolves a Message-ID header to its UID in folder.
func (a *IMAPAdapter) FindUIDByMessageID(ctx context.Context, folder, messageID string) (uint32, error) {
	var uid uint32

	err := a.do(ctx, func(conn *imapclient.Client) error {
		if err := a.selectFolder(conn, folder, true); err != nil {
			return err
		}

		criteria := &imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "Message-Id", Value: messageID}},
		}
		data, err := waitSearch(ctx, conn.UIDSearch(criteria, nil))
		if err != nil {
			return apperr.RemoteOpError("message-id search", err)
		}

		all := data.AllUIDs()
		if len(all) == 0 {
			return apperr.NotFound("message on server")
		}
		uid = uint32(all[len(all)-1])
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uid, nil
}

// waitSearch awaits a search command without losing context
// cancellation.
func waitSearch(ctx context.Context, cmd *imapclient.SearchCommand) (*imap.SearchData, error) {
	type result struct {
		data *imap.SearchData
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := cmd.Wait()
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.data, r.err
	}
}
