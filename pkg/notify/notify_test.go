package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/driver"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/stretchr/testify/require"
)

func TestSMTP_Notify(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
		gotAuth smtp.Auth
	)

	n := NewSMTP(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "crawler",
		Password: "secret",
		From:     "crawler@example.com",
		To:       []string{"ops@example.com", "dev@example.com"},
	})
	n.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	err := n.Notify(context.Background(), Message{Subject: "Done\nInjected: x", Body: "line 1\nline 2"})
	require.NoError(t, err)

	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.NotNil(t, gotAuth)
	require.Equal(t, "crawler@example.com", gotFrom)
	require.Equal(t, []string{"ops@example.com", "dev@example.com"}, gotTo)

	msg := string(gotMsg)
	require.Contains(t, msg, "To: ops@example.com, dev@example.com\r\n")
	require.Contains(t, msg, "Subject: Done Injected: x\r\n")
	require.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	require.True(t, strings.HasSuffix(msg, "\r\n\r\nline 1\r\nline 2"))
}

func TestSMTP_NoAuthWithoutUsername(t *testing.T) {
	n := NewSMTP(SMTPConfig{Host: "localhost", Port: 2525, From: "a@b", To: []string{"c@d"}})

	var gotAddr string
	var gotAuth smtp.Auth
	n.send = func(addr string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		gotAddr, gotAuth = addr, a
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), Message{Subject: "s"}))
	require.Equal(t, "localhost:2525", gotAddr)
	require.Nil(t, gotAuth)
}

func TestSMTP_SendError(t *testing.T) {
	n := NewSMTP(SMTPConfig{Host: "localhost", From: "a@b", To: []string{"c@d"}})
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := n.Notify(context.Background(), Message{Subject: "s"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, Message) error {
	f.calls++
	return errors.New("smtp down")
}

func TestSend_SwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	logging.Setup(logging.Config{Level: logging.LevelWarn, Output: &buf})
	t.Cleanup(func() { logging.Setup(logging.DefaultConfig()) })

	f := &failingNotifier{}
	Send(context.Background(), f, Message{Subject: "run completed"})
	Send(context.Background(), nil, Message{Subject: "ignored"})

	require.Equal(t, 1, f.calls)
	require.Contains(t, buf.String(), "Failed to send notification")
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	logging.Setup(logging.Config{Level: logging.LevelInfo, Output: &buf})
	t.Cleanup(func() { logging.Setup(logging.DefaultConfig()) })

	require.NoError(t, NewLog().Notify(context.Background(), Message{Subject: "hello", Body: "world"}))
	require.Contains(t, buf.String(), `"subject":"hello"`)
}

func TestForRun(t *testing.T) {
	summary := &driver.Summary{
		RunID:        "run-1",
		TotalIDs:     3,
		TotalBatches: 2,
		Skipped:      1,
		Processed:    1,
		Attempted:    1,
		Succeeded:    1,
		Duration:     3 * time.Second,
	}

	msg := ForRun(summary, nil)
	require.Equal(t, "catalog-crawler run completed (1/1 succeeded)", msg.Subject)
	require.Contains(t, msg.Body, "Run run-1 completed.")
	require.Contains(t, msg.Body, "2 total, 1 skipped, 1 processed, 0 remaining")

	summary.Interrupted = true
	msg = ForRun(summary, context.Canceled)
	require.Contains(t, msg.Subject, "interrupted")
	require.NotContains(t, msg.Body, "Error:")

	summary.Interrupted = false
	msg = ForRun(summary, errors.New("write batch 2: disk full"))
	require.Contains(t, msg.Subject, "failed")
	require.Contains(t, msg.Body, "Error: write batch 2: disk full")
}
