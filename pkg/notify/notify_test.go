package notify

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/followup/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []*gomail.Message
	err      error
}

func (s *recordingSender) DialAndSend(m ...*gomail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, m...)

	return s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRender_EscapesUserFields(t *testing.T) {
	n := New(&recordingSender{}, "site@example.com", "ops@example.com", discard())

	body, err := n.Render(&models.Lead{
		Name:     `<script>alert("x")</script>`,
		Email:    "ada@example.com",
		Phone:    "+1 555 0100",
		Interest: "Pricing & plans",
		Location: "Lisbon",
	})
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "Pricing &amp; plans")
	assert.Contains(t, body, "<td>ada@example.com</td>")
	assert.Contains(t, body, "<td>Lisbon</td>")
}

func TestSend_ComposesMessage(t *testing.T) {
	sender := &recordingSender{}
	n := New(sender, "site@example.com", "ops@example.com", discard())

	require.NoError(t, n.Send(t.Context(), &models.Lead{ID: "lead-1", Name: "Ada"}))
	require.Len(t, sender.messages, 1)

	m := sender.messages[0]
	assert.Equal(t, []string{"site@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"ops@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{DefaultSubject}, m.GetHeader("Subject"))

	var raw bytes.Buffer
	_, err := m.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "text/html")
}

func TestNotifyNewLead_FailureIsLoggedNotReturned(t *testing.T) {
	var logs bytes.Buffer

	sender := &recordingSender{err: errors.New("connection refused")}
	n := New(sender, "site@example.com", "ops@example.com", slog.New(slog.NewTextHandler(&logs, nil)))

	n.NotifyNewLead(t.Context(), &models.Lead{ID: "lead-1"})
	n.Wait()

	assert.Len(t, sender.messages, 1)
	assert.Contains(t, logs.String(), "lead notification failed")
	assert.Contains(t, logs.String(), "connection refused")
}

func TestNewSMTP_RequiresSettings(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{Host: "smtp.example.com"}, discard())
	assert.Error(t, err)

	n, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", From: "a@example.com", To: "b@example.com"}, discard())
	require.NoError(t, err)
	assert.NotNil(t, n)
}
