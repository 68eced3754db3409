package conversations

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/codr1/leaguely/internal/api/authz"
	"github.com/codr1/leaguely/internal/chat"
	"github.com/codr1/leaguely/internal/directory"
	"github.com/codr1/leaguely/internal/media"
	"github.com/codr1/leaguely/internal/ratelimit"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

// Demo data: conversation 1 is the Hudson Hitters team chat (users 1, 2, 3),
// conversation 2 is a direct chat between users 1 and 4.
func setupConversationsTest(t *testing.T, cooldown time.Duration) *chat.Service {
	t.Helper()

	prevService, prevUsers, prevStore, prevLimiter := chatService, users, mediaStore, limiter

	backend, err := chat.NewDemoBackend(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	svc := chat.NewService(backend, chat.Options{MaxMessageLength: 50, PageSize: 2})
	store, err := media.NewDiskStore(t.TempDir(), 1024)
	if err != nil {
		t.Fatal(err)
	}
	rl := ratelimit.New(&ratelimit.Config{MessageCooldown: cooldown, MessageMaxPerMinute: 100})
	InitHandlers(svc, directory.NewDemoRepository(), store, rl)

	t.Cleanup(func() {
		rl.Close()
		chatService, users, mediaStore, limiter = prevService, prevUsers, prevStore, prevLimiter
	})
	return svc
}

func authedRequest(method, target string, body []byte, userID int64) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{ID: userID, Role: "player"}))
}

func withConversation(req *http.Request, id string) *http.Request {
	req.SetPathValue(conversationIDPathKey, id)
	return req
}

func TestHandleListConversations(t *testing.T) {
	setupConversationsTest(t, 0)

	rec := httptest.NewRecorder()
	HandleListConversations(rec, authedRequest(http.MethodGet, "/api/v1/conversations", nil, 1))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Conversations []conversationResponse `json:"conversations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Conversations) != 2 || resp.Conversations[0].ID != 1 {
		t.Fatalf("expected team chat first, got %+v", resp.Conversations)
	}
	if resp.Conversations[0].LastActivityAt.IsZero() || resp.Conversations[0].LastMessage == nil {
		t.Fatalf("expected last activity, got %+v", resp.Conversations[0])
	}

	rec = httptest.NewRecorder()
	HandleListConversations(rec, authedRequest(http.MethodGet, "/api/v1/conversations", nil, 6))
	if !strings.Contains(rec.Body.String(), `"conversations":[]`) {
		t.Fatalf("expected empty list for user without chats, got %s", rec.Body.String())
	}
}

func TestHandleCreateConversation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "direct", body: `{"kind":"direct","participantIds":[5]}`, wantStatus: http.StatusCreated},
		{name: "team", body: `{"kind":"team","teamId":1,"title":"Lineups","participantIds":[2,3]}`, wantStatus: http.StatusCreated},
		{name: "direct with self only", body: `{"kind":"direct","participantIds":[]}`, wantStatus: http.StatusBadRequest},
		{name: "team without team", body: `{"kind":"team","participantIds":[2]}`, wantStatus: http.StatusBadRequest},
		{name: "unknown kind", body: `{"kind":"group","participantIds":[2]}`, wantStatus: http.StatusBadRequest},
		{name: "unknown participant", body: `{"kind":"direct","participantIds":[404]}`, wantStatus: http.StatusBadRequest},
		{name: "negative participant", body: `{"kind":"direct","participantIds":[-1]}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := setupConversationsTest(t, 0)
			rec := httptest.NewRecorder()

			HandleCreateConversation(rec, authedRequest(http.MethodPost, "/api/v1/conversations", []byte(tc.body), 1))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusCreated {
				return
			}
			var conv chat.Conversation
			if err := json.NewDecoder(rec.Body).Decode(&conv); err != nil {
				t.Fatal(err)
			}
			if conv.ParticipantIDs[0] != 1 {
				t.Fatalf("expected creator as first participant, got %v", conv.ParticipantIDs)
			}
			msgs, err := svc.ListMessages(context.Background(), 1, conv.ID, chat.MessageQuery{})
			if err != nil || len(msgs) != 1 || msgs[0].Kind != chat.KindSystem {
				t.Fatalf("expected creation system message, got %+v, %v", msgs, err)
			}
		})
	}
}

func TestHandleListMessages(t *testing.T) {
	setupConversationsTest(t, 0)

	tests := []struct {
		name       string
		userID     int64
		id         string
		query      string
		wantStatus int
		wantBodies []string
	}{
		{name: "default page size", userID: 1, id: "1", wantStatus: http.StatusOK, wantBodies: []string{"I'll bring the extra nets.", "See everyone there!"}},
		{name: "explicit limit", userID: 2, id: "1", query: "?limit=1", wantStatus: http.StatusOK, wantBodies: []string{"See everyone there!"}},
		{name: "before the first message", userID: 1, id: "1", query: "?before=2000-01-01T00:00:00Z", wantStatus: http.StatusOK, wantBodies: []string{}},
		{name: "not a participant", userID: 4, id: "1", wantStatus: http.StatusNotFound},
		{name: "unknown conversation", userID: 1, id: "77", wantStatus: http.StatusNotFound},
		{name: "bad before", userID: 1, id: "1", query: "?before=yesterday", wantStatus: http.StatusBadRequest},
		{name: "bad limit", userID: 1, id: "1", query: "?limit=-5", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := withConversation(authedRequest(http.MethodGet, "/api/v1/conversations/"+tc.id+"/messages"+tc.query, nil, tc.userID), tc.id)
			rec := httptest.NewRecorder()

			HandleListMessages(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			var resp struct {
				Messages []chat.Message `json:"messages"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Messages) != len(tc.wantBodies) {
				t.Fatalf("expected %d messages, got %+v", len(tc.wantBodies), resp.Messages)
			}
			for i, want := range tc.wantBodies {
				if resp.Messages[i].Body != want {
					t.Fatalf("message %d: expected %q, got %q", i, want, resp.Messages[i].Body)
				}
			}
		})
	}
}

func TestHandleSendMessage(t *testing.T) {
	tests := []struct {
		name       string
		userID     int64
		id         string
		body       string
		wantStatus int
	}{
		{name: "participant", userID: 3, id: "1", body: `{"body":"  On my way  "}`, wantStatus: http.StatusCreated},
		{name: "blank body", userID: 3, id: "1", body: `{"body":"   "}`, wantStatus: http.StatusBadRequest},
		{name: "too long", userID: 3, id: "1", body: `{"body":"` + strings.Repeat("x", 51) + `"}`, wantStatus: http.StatusBadRequest},
		{name: "outsider", userID: 6, id: "1", body: `{"body":"hi"}`, wantStatus: http.StatusNotFound},
		{name: "bad json", userID: 3, id: "1", body: `{"text":"hi"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setupConversationsTest(t, 0)
			req := withConversation(authedRequest(http.MethodPost, "/api/v1/conversations/"+tc.id+"/messages", []byte(tc.body), tc.userID), tc.id)
			rec := httptest.NewRecorder()

			HandleSendMessage(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusCreated {
				return
			}
			var msg chat.Message
			if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
				t.Fatal(err)
			}
			if msg.Body != "On my way" || msg.SenderID != tc.userID || msg.Kind != chat.KindText {
				t.Fatalf("unexpected message %+v", msg)
			}
		})
	}
}

func TestHandleSendMessageCooldown(t *testing.T) {
	setupConversationsTest(t, time.Minute)

	send := func() int {
		req := withConversation(authedRequest(http.MethodPost, "/api/v1/conversations/1/messages", []byte(`{"body":"hi"}`), 2), "1")
		rec := httptest.NewRecorder()
		HandleSendMessage(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusCreated {
		t.Fatalf("expected first send to succeed, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second send to be throttled, got %d", code)
	}
}

func TestHandleSendImage(t *testing.T) {
	tests := []struct {
		name       string
		userID     int64
		data       []byte
		wantStatus int
	}{
		{name: "png", userID: 1, data: pngHeader, wantStatus: http.StatusCreated},
		{name: "text", userID: 1, data: []byte("not an image"), wantStatus: http.StatusUnsupportedMediaType},
		{name: "too large", userID: 1, data: append(append([]byte{}, pngHeader...), make([]byte, 2048)...), wantStatus: http.StatusRequestEntityTooLarge},
		{name: "empty", userID: 1, data: nil, wantStatus: http.StatusBadRequest},
		{name: "outsider", userID: 5, data: pngHeader, wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setupConversationsTest(t, 0)
			req := withConversation(authedRequest(http.MethodPost, "/api/v1/conversations/2/images?caption=court+7", tc.data, tc.userID), "2")
			rec := httptest.NewRecorder()

			HandleSendImage(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusCreated {
				return
			}

			var msg chat.Message
			if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
				t.Fatal(err)
			}
			if msg.Kind != chat.KindImage || msg.Body != "court 7" || !strings.HasPrefix(msg.ImageURL, media.URLPrefix) {
				t.Fatalf("unexpected image message %+v", msg)
			}

			// The stored file is served back under its URL.
			name := strings.TrimPrefix(msg.ImageURL, media.URLPrefix)
			mediaReq := httptest.NewRequest(http.MethodGet, msg.ImageURL, nil)
			mediaReq.SetPathValue(mediaFilePathKey, name)
			mediaRec := httptest.NewRecorder()
			HandleMedia(mediaRec, mediaReq)
			if mediaRec.Code != http.StatusOK || mediaRec.Header().Get("Content-Type") != "image/png" {
				t.Fatalf("expected png served, got %d %q", mediaRec.Code, mediaRec.Header().Get("Content-Type"))
			}
			if !bytes.Equal(mediaRec.Body.Bytes(), tc.data) {
				t.Fatal("served bytes differ from upload")
			}
		})
	}
}

func TestHandleSendImageLongCaptionStoresNothing(t *testing.T) {
	setupConversationsTest(t, 0)
	dir := t.TempDir()
	store, err := media.NewDiskStore(dir, 1024)
	if err != nil {
		t.Fatal(err)
	}
	mediaStore = store

	caption := strings.Repeat("a", 51)
	req := withConversation(authedRequest(http.MethodPost, "/api/v1/conversations/2/images?caption="+caption, pngHeader, 1), "2")
	rec := httptest.NewRecorder()

	HandleSendImage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no stored media, found %d files", len(entries))
	}
}

func TestHandleMediaRejectsUnknownFiles(t *testing.T) {
	setupConversationsTest(t, 0)

	for _, name := range []string{"../../etc/passwd", "3f1c6a3e-5d2b-4b8e-9a55-1f0f0f0f0f0f.png"} {
		req := httptest.NewRequest(http.MethodGet, "/media/x", nil)
		req.SetPathValue(mediaFilePathKey, name)
		rec := httptest.NewRecorder()
		HandleMedia(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%q: expected 404, got %d", name, rec.Code)
		}
	}
}

func TestHandleMarkRead(t *testing.T) {
	svc := setupConversationsTest(t, 0)
	ctx := context.Background()

	before, err := svc.ListConversations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if before[0].UnreadCount == 0 {
		t.Fatal("expected unread messages for user 2 in demo data")
	}

	rec := httptest.NewRecorder()
	HandleMarkRead(rec, withConversation(authedRequest(http.MethodPost, "/api/v1/conversations/1/read", nil, 2), "1"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	after, err := svc.ListConversations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if after[0].UnreadCount != 0 {
		t.Fatalf("expected no unread messages, got %d", after[0].UnreadCount)
	}

	rec = httptest.NewRecorder()
	HandleMarkRead(rec, withConversation(authedRequest(http.MethodPost, "/api/v1/conversations/2/read", nil, 2), "2"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for outsider, got %d", rec.Code)
	}
}

func TestHandleEventsStreamsMessages(t *testing.T) {
	svc := setupConversationsTest(t, 0)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/conversations/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		HandleEvents(w, r.WithContext(authz.ContextWithUser(r.Context(), &authz.AuthUser{ID: 1, Role: "player"})))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/conversations/1/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	// The stream opens with a comment once the subscription is registered.
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("expected connected comment, got %q, %v", line, err)
	}

	if _, err := svc.SendText(ctx, 2, 1, "Game on"); err != nil {
		t.Fatal(err)
	}

	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	if eventLine != string(chat.EventMessage) {
		t.Fatalf("expected message event, got %q", eventLine)
	}
	var evt chat.Event
	if err := json.Unmarshal([]byte(dataLine), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Message == nil || evt.Message.Body != "Game on" || evt.Message.SenderID != 2 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestHandleEventsRejectsOutsider(t *testing.T) {
	setupConversationsTest(t, 0)

	rec := httptest.NewRecorder()
	HandleEvents(rec, withConversation(authedRequest(http.MethodGet, "/api/v1/conversations/1/events", nil, 4), "1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
