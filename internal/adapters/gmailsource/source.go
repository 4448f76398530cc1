package gmailsource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/mikey/jobmail/internal/core"
	"go.uber.org/zap"
)

const user = "me"

// decodeFailedBody stands in for bodies that could not be decoded so
// downstream stages still see the message
const decodeFailedBody = "(unable to decode message body)"

// Source is the Gmail implementation of the MailSource interface. It
// is read-only against the mailbox.
type Source struct {
	svc      *gmail.Service
	query    string
	pageSize int64
	logger   *zap.Logger
}

// NewSource creates a Gmail mail source over an already-authenticated
// service
func NewSource(svc *gmail.Service, query string, pageSize int64, logger *zap.Logger) *Source {
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 500
	}
	return &Source{
		svc:      svc,
		query:    query,
		pageSize: pageSize,
		logger:   logger,
	}
}

// BuildQuery renders the Gmail search query from configuration: an
// OR-joined subject term group plus a date lower bound, e.g.
// "(subject:applied OR subject:interview) after:2024/01/01".
func BuildQuery(subjectTerms []string, afterDate string) string {
	var parts []string
	if len(subjectTerms) > 0 {
		clauses := make([]string, 0, len(subjectTerms))
		for _, term := range subjectTerms {
			term = strings.TrimSpace(term)
			if term != "" {
				clauses = append(clauses, "subject:"+term)
			}
		}
		if len(clauses) > 0 {
			parts = append(parts, "("+strings.Join(clauses, " OR ")+")")
		}
	}
	if afterDate = strings.TrimSpace(afterDate); afterDate != "" {
		parts = append(parts, "after:"+afterDate)
	}
	return strings.Join(parts, " ")
}

// FetchPage lists one page of matching message IDs and resolves each
// to its full content with a second round trip. The list call is
// bounded by the caller's remaining budget so a nearly-exhausted cap
// does not burn a full page of per-message gets.
func (s *Source) FetchPage(ctx context.Context, pageToken string, limit int) (*core.MessagePage, error) {
	maxResults := s.pageSize
	if limit > 0 && int64(limit) < maxResults {
		maxResults = int64(limit)
	}
	call := s.svc.Users.Messages.List(user).
		Q(s.query).
		MaxResults(maxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, classifyError(fmt.Errorf("listing messages: %w", err))
	}

	page := &core.MessagePage{NextPageToken: resp.NextPageToken}
	for _, ref := range resp.Messages {
		full, err := s.svc.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			classified := classifyError(fmt.Errorf("getting message %s: %w", ref.Id, err))
			var authErr *core.AuthError
			if errors.As(classified, &authErr) {
				return nil, classified
			}
			// A single unreadable message is skipped this run; it is
			// not marked known, so a later run picks it up again.
			s.logger.Warn("Failed to get message, skipping",
				zap.String("message_id", ref.Id),
				zap.Error(err))
			continue
		}
		page.Messages = append(page.Messages, s.parseMessage(full))
	}

	return page, nil
}

// parseMessage maps a full-format Gmail message to the domain type
func (s *Source) parseMessage(msg *gmail.Message) core.Message {
	out := core.Message{ID: msg.Id}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				out.Sender = header.Value
			case "Subject":
				out.Subject = header.Value
			case "Date":
				out.RawDate = header.Value
			}
		}
		out.Body = extractPlainText(msg.Payload)
	}

	if t, err := mail.ParseDate(out.RawDate); err == nil {
		out.ReceivedAt = t
	} else if msg.InternalDate > 0 {
		out.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}

	return out
}

// extractPlainText returns the first text/plain body in the MIME part
// tree, falling back to the root body for single-part messages
func extractPlainText(root *gmail.MessagePart) string {
	if body := firstPlainPart(root); body != "" {
		return body
	}
	// Single-part non-multipart messages carry the body on the root.
	if len(root.Parts) == 0 && root.Body != nil && root.Body.Data != "" {
		return decodeOrPlaceholder(root.Body.Data)
	}
	return ""
}

func firstPlainPart(part *gmail.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		return decodeOrPlaceholder(part.Body.Data)
	}
	for _, sub := range part.Parts {
		if body := firstPlainPart(sub); body != "" {
			return body
		}
	}
	return ""
}

func decodeOrPlaceholder(data string) string {
	decoded, err := decodeBody(data)
	if err != nil {
		return decodeFailedBody
	}
	return decoded
}

// decodeBody handles both padded and unpadded base64url payloads
func decodeBody(data string) (string, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded), nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// classifyError maps Gmail API failures onto the run error taxonomy:
// credential problems abort the run, rate limits and server errors are
// retried, anything else surfaces as-is.
func classifyError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &core.AuthError{Err: err}
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return &core.TransientFetchError{Err: err}
		default:
			return err
		}
	}
	// Network-level failures have no HTTP status; treat as transient.
	return &core.TransientFetchError{Err: err}
}
