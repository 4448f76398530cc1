package gmailsource

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/core"
)

func TestBuildQuery(t *testing.T) {
	q := BuildQuery([]string{"applied", "application", "interview", "rejected"}, "2024/01/01")
	assert.Equal(t,
		"(subject:applied OR subject:application OR subject:interview OR subject:rejected) after:2024/01/01",
		q)

	assert.Equal(t, "after:2024/01/01", BuildQuery(nil, "2024/01/01"))
	assert.Equal(t, "(subject:offer)", BuildQuery([]string{" offer "}, ""))
	assert.Equal(t, "", BuildQuery(nil, ""))
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractPlainTextMultipart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>hi</p>")}},
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("hello there")}},
		},
	}
	assert.Equal(t, "hello there", extractPlainText(payload))
}

func TestExtractPlainTextSinglePart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: b64("plain body")},
	}
	assert.Equal(t, "plain body", extractPlainText(payload))

	// Non-multipart root with an unlabeled body still decodes.
	payload = &gmail.MessagePart{
		Body: &gmail.MessagePartBody{Data: b64("root body")},
	}
	assert.Equal(t, "root body", extractPlainText(payload))
}

func TestExtractPlainTextNested(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("nested body")}},
				},
			},
		},
	}
	assert.Equal(t, "nested body", extractPlainText(payload))
}

func TestExtractPlainTextBadEncoding(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: "!!! not base64 !!!"},
	}
	assert.Equal(t, decodeFailedBody, extractPlainText(payload))
}

func TestDecodeBodyUnpadded(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte("unpadded"))
	decoded, err := decodeBody(raw)
	require.NoError(t, err)
	assert.Equal(t, "unpadded", decoded)
}

func TestParseMessage(t *testing.T) {
	src := NewSource(nil, "", 0, zap.NewNop())
	msg := src.parseMessage(&gmail.Message{
		Id:           "abc123",
		InternalDate: 1717171717000,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Acme Recruiting <jobs@acme.com>"},
				{Name: "Subject", Value: "Interview invitation"},
				{Name: "Date", Value: "Mon, 02 Jun 2024 10:30:00 +0000"},
			},
			Body: &gmail.MessagePartBody{Data: b64("We would like to interview you")},
		},
	})

	assert.Equal(t, "abc123", msg.ID)
	assert.Equal(t, "Acme Recruiting <jobs@acme.com>", msg.Sender)
	assert.Equal(t, "Interview invitation", msg.Subject)
	assert.Equal(t, "We would like to interview you", msg.Body)
	assert.Equal(t, 2024, msg.ReceivedAt.Year())
}

func TestParseMessageFallsBackToInternalDate(t *testing.T) {
	src := NewSource(nil, "", 0, zap.NewNop())
	msg := src.parseMessage(&gmail.Message{
		Id:           "x",
		InternalDate: 1717171717000,
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{{Name: "Date", Value: "not a date"}},
		},
	})
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestClassifyError(t *testing.T) {
	var authErr *core.AuthError
	var transientErr *core.TransientFetchError

	assert.ErrorAs(t, classifyError(&googleapi.Error{Code: 401}), &authErr)
	assert.ErrorAs(t, classifyError(&googleapi.Error{Code: 403}), &authErr)
	assert.ErrorAs(t, classifyError(&googleapi.Error{Code: 429}), &transientErr)
	assert.ErrorAs(t, classifyError(&googleapi.Error{Code: 503}), &transientErr)
	assert.ErrorAs(t, classifyError(errors.New("connection reset")), &transientErr)

	badRequest := classifyError(&googleapi.Error{Code: 400})
	assert.False(t, core.IsRetryable(badRequest))
}
