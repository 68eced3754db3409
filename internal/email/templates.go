package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/codr1/leaguely/internal/chat"
)

type Message struct {
	Subject string
	Body    string
}

// DigestDetails carries the app-level values rendered into every digest.
type DigestDetails struct {
	AppName string
	BaseURL string
}

// FormatWhen renders t the way digests show times, e.g. "Monday, Jan 2 at 3:04 PM UTC".
func FormatWhen(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return fmt.Sprintf("%s at %s", t.Format("Monday, Jan 2"), t.Format("3:04 PM MST"))
}

// BuildUnreadDigest renders the unread message summary for one user.
func BuildUnreadDigest(digest chat.UnreadDigest, details DigestDetails) Message {
	appName := strings.TrimSpace(details.AppName)
	if appName == "" {
		appName = "Leaguely"
	}
	name := strings.TrimSpace(digest.Name)
	if name == "" {
		name = "there"
	}

	noun := "messages"
	if digest.Unread == 1 {
		noun = "message"
	}
	subject := fmt.Sprintf("You have %d unread %s on %s", digest.Unread, noun, appName)

	lines := []string{
		fmt.Sprintf("Hi %s,", name),
		"",
		fmt.Sprintf("You have %d unread %s.", digest.Unread, noun),
	}
	if !digest.Newest.IsZero() {
		lines = append(lines, fmt.Sprintf("Latest: %s", FormatWhen(digest.Newest, nil)))
	}
	if len(digest.Conversations) > 0 {
		lines = append(lines, "", "Conversations:")
		for _, label := range digest.Conversations {
			lines = append(lines, "- "+label)
		}
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(details.BaseURL), "/"); baseURL != "" {
		lines = append(lines, "", fmt.Sprintf("Catch up at %s/conversations", baseURL))
	}

	return Message{
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}
}
