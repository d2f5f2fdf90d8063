package sync

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"path"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"

	"mailflow/core/domain"
	"mailflow/core/port/out"
	"mailflow/pkg/apperr"
)

const snippetLength = 200

var (
	htmlPolicy  = bluemonday.UGCPolicy()
	stripPolicy = bluemonday.StrictPolicy()
)

// ParseMessage turns one fetched raw message into the mirror's domain
// form. HTML bodies are sanitized before storage; attachment content is
// discarded, only metadata survives.
func ParseMessage(folder string, msg *out.FetchedMessage) (*domain.Email, error) {
	if len(msg.Raw) == 0 {
		return nil, apperr.ParseError("", fmt.Errorf("empty message body"))
	}

	mr, err := mail.CreateReader(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, apperr.ParseError("", err)
	}
	defer mr.Close()

	header := mr.Header

	email := &domain.Email{
		UID:       msg.UID,
		Folder:    folder,
		IsRead:    msg.IsSeen,
		IsStarred: msg.IsFlagged,
		IsDraft:   msg.IsDraft,
		IsSent:    isSentFolder(folder),
		IsTrash:   isTrashFolder(folder),
		IsSpam:    isSpamFolder(folder),
		SizeBytes: msg.Size,
	}

	email.Subject, _ = header.Subject()

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		email.FromAddress = strings.ToLower(from[0].Address)
		email.FromName = from[0].Name
	}

	for _, spec := range []struct {
		key  string
		kind domain.RecipientKind
	}{
		{"To", domain.RecipientTo},
		{"Cc", domain.RecipientCc},
		{"Bcc", domain.RecipientBcc},
	} {
		addrs, err := header.AddressList(spec.key)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			address := strings.ToLower(addr.Address)
			email.Recipients = append(email.Recipients, &domain.Recipient{
				Kind:    spec.kind,
				Address: address,
				Name:    addr.Name,
				Domain:  addressDomain(address),
			})
		}
	}

	if date, err := header.Date(); err == nil && !date.IsZero() {
		email.DateSent = date.UTC()
	} else if !msg.InternalDate.IsZero() {
		email.DateSent = msg.InternalDate.UTC()
	} else {
		email.DateSent = time.Now().UTC()
	}
	if !msg.InternalDate.IsZero() {
		email.DateReceived = msg.InternalDate.UTC()
	} else {
		email.DateReceived = email.DateSent
	}

	if id, err := header.MessageID(); err == nil && id != "" {
		email.MessageID = id
	} else {
		// No Message-ID header: synthesize a stable local one so the
		// mirror can still dedupe the row.
		email.MessageID = fmt.Sprintf("%d.%d@mailflow.local", msg.UID, email.DateSent.Unix())
	}

	if refs, err := header.MsgIDList("In-Reply-To"); err == nil && len(refs) > 0 {
		email.InReplyTo = refs[0]
	}
	if refs, err := header.MsgIDList("References"); err == nil {
		email.References = refs
	}

	// Thread correlation: root reference, else reply target, else self.
	switch {
	case len(email.References) > 0:
		email.ThreadID = email.References[0]
	case email.InReplyTo != "":
		email.ThreadID = email.InReplyTo
	default:
		email.ThreadID = email.MessageID
	}

	email.RawHeaders = rawHeaderBlock(msg.Raw)

	var bodyText, bodyHTML string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if body, err := io.ReadAll(part.Body); err == nil && bodyText == "" {
					bodyText = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if body, err := io.ReadAll(part.Body); err == nil && bodyHTML == "" {
					bodyHTML = string(body)
				}
			default:
				// Inline non-text part, typically an embedded image.
				size, _ := io.Copy(io.Discard, part.Body)
				name := inlineFilename(h)
				email.Attachments = append(email.Attachments, &domain.Attachment{
					Filename:    name,
					ContentType: contentType,
					Extension:   attachmentExtension(name),
					SizeBytes:   size,
					ContentID:   strings.Trim(h.Get("Content-Id"), "<>"),
					IsInline:    true,
				})
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			email.Attachments = append(email.Attachments, &domain.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Extension:   attachmentExtension(filename),
				SizeBytes:   size,
				ContentID:   strings.Trim(h.Get("Content-Id"), "<>"),
			})
		}
	}

	email.BodyText = bodyText
	if bodyHTML != "" {
		email.BodyHTML = htmlPolicy.Sanitize(bodyHTML)
	}

	if bodyText != "" {
		email.Snippet = generateSnippet(bodyText, snippetLength)
	} else if bodyHTML != "" {
		email.Snippet = generateSnippet(stripHTMLTags(bodyHTML), snippetLength)
	}

	email.AttachmentCount = len(email.Attachments)
	return email, nil
}

func addressDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return address[at+1:]
}

func isSentFolder(folder string) bool {
	lower := strings.ToLower(folder)
	return strings.Contains(lower, "sent")
}

func isTrashFolder(folder string) bool {
	lower := strings.ToLower(folder)
	return strings.Contains(lower, "trash") || strings.Contains(lower, "deleted")
}

func isSpamFolder(folder string) bool {
	lower := strings.ToLower(folder)
	return strings.Contains(lower, "spam") || strings.Contains(lower, "junk")
}

// attachmentExtension extracts the lowercased filename extension
// without the dot, empty when there is none.
func attachmentExtension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return strings.TrimPrefix(ext, ".")
}

func inlineFilename(h *mail.InlineHeader) string {
	if name := h.Get("Content-Description"); name != "" {
		return name
	}
	_, params, err := h.ContentType()
	if err == nil {
		if name, ok := params["name"]; ok {
			return name
		}
	}
	return ""
}

// rawHeaderBlock slices the message's header section out of the raw
// bytes, capped so a pathological header cannot bloat the row.
func rawHeaderBlock(raw []byte) string {
	const maxHeaderBytes = 16 * 1024

	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		end = bytes.Index(raw, []byte("\n\n"))
	}
	if end < 0 || end > maxHeaderBytes {
		if len(raw) > maxHeaderBytes {
			end = maxHeaderBytes
		} else {
			end = len(raw)
		}
	}
	return string(raw[:end])
}

// stripHTMLTags reduces markup to its text content.
func stripHTMLTags(s string) string {
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// generateSnippet collapses whitespace and truncates to at most n runes.
func generateSnippet(text string, n int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= n {
		return collapsed
	}
	return strings.TrimSpace(string(runes[:n]))
}
