package email

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codr1/leaguely/internal/chat"
)

type sentEmail struct {
	recipient string
	subject   string
	body      string
}

type fakeEmailSender struct {
	mu          sync.Mutex
	sent        []sentEmail
	failFor     map[string]bool
	sawDeadline bool
}

func (f *fakeEmailSender) Send(ctx context.Context, recipient, subject, body string) error {
	return f.SendFrom(ctx, recipient, subject, body, "")
}

func (f *fakeEmailSender) SendFrom(ctx context.Context, recipient, subject, body, sender string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); ok {
		f.sawDeadline = true
	}
	if f.failFor[recipient] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, sentEmail{recipient: recipient, subject: subject, body: body})
	return nil
}

type fakeDigestSource struct {
	digests []chat.UnreadDigest
	err     error
	marked  map[int64]time.Time
}

func (f *fakeDigestSource) UnreadDigests(context.Context) ([]chat.UnreadDigest, error) {
	return f.digests, f.err
}

func (f *fakeDigestSource) MarkDigestSent(_ context.Context, userID int64, at time.Time) error {
	if f.marked == nil {
		f.marked = make(map[int64]time.Time)
	}
	f.marked[userID] = at
	return nil
}

func TestSendUnreadDigests(t *testing.T) {
	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	source := &fakeDigestSource{digests: []chat.UnreadDigest{
		{UserID: 1, Name: "Alice", Email: "alice@example.com", Unread: 3, Conversations: []string{"Hudson Hitters", "Direct message"}, Newest: now.Add(-time.Hour)},
		{UserID: 2, Name: "Ben", Email: "ben@example.com", Unread: 1},
		{UserID: 3, Name: "Carmen", Email: "  ", Unread: 2},
		{UserID: 4, Name: "Dev", Email: "dev@example.com", Unread: 5},
	}}
	sender := &fakeEmailSender{failFor: map[string]bool{"dev@example.com": true}}

	result, err := SendUnreadDigests(context.Background(), source, sender, DigestDetails{AppName: "Leaguely", BaseURL: "https://leaguely.example/"}, now)
	if err != nil {
		t.Fatalf("SendUnreadDigests: %v", err)
	}
	if result != (DigestResult{Sent: 2, Skipped: 1, Failed: 1}) {
		t.Fatalf("unexpected result %+v", result)
	}
	if !sender.sawDeadline {
		t.Fatal("expected sends to carry a deadline")
	}

	if len(sender.sent) != 2 || sender.sent[0].recipient != "alice@example.com" {
		t.Fatalf("unexpected sends %+v", sender.sent)
	}
	if sender.sent[0].subject != "You have 3 unread messages on Leaguely" {
		t.Fatalf("unexpected subject %q", sender.sent[0].subject)
	}
	if sender.sent[1].subject != "You have 1 unread message on Leaguely" {
		t.Fatalf("unexpected singular subject %q", sender.sent[1].subject)
	}

	if len(source.marked) != 2 || !source.marked[1].Equal(now) || !source.marked[2].Equal(now) {
		t.Fatalf("expected only delivered digests marked, got %v", source.marked)
	}
}

func TestSendUnreadDigestsErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := SendUnreadDigests(ctx, nil, &fakeEmailSender{}, DigestDetails{}, time.Now()); err == nil {
		t.Fatal("expected error without a source")
	}

	loadErr := errors.New("database is locked")
	if _, err := SendUnreadDigests(ctx, &fakeDigestSource{err: loadErr}, &fakeEmailSender{}, DigestDetails{}, time.Now()); !errors.Is(err, loadErr) {
		t.Fatalf("expected wrapped load error, got %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	source := &fakeDigestSource{digests: []chat.UnreadDigest{{UserID: 1, Email: "a@example.com", Unread: 1}}}
	sender := &fakeEmailSender{}
	if _, err := SendUnreadDigests(canceled, source, sender, DigestDetails{}, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no sends after cancel, got %d", len(sender.sent))
	}
}

func TestBuildUnreadDigest(t *testing.T) {
	newest := time.Date(2026, 5, 4, 15, 4, 0, 0, time.UTC)
	msg := BuildUnreadDigest(chat.UnreadDigest{
		Unread:        2,
		Conversations: []string{"Hudson Hitters"},
		Newest:        newest,
	}, DigestDetails{BaseURL: "https://leaguely.example/"})

	for _, want := range []string{
		"Hi there,",
		"You have 2 unread messages.",
		"Latest: Monday, May 4 at 3:04 PM UTC",
		"- Hudson Hitters",
		"Catch up at https://leaguely.example/conversations",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if msg.Subject != "You have 2 unread messages on Leaguely" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
}
