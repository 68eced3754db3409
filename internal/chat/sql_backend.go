package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/codr1/leaguely/internal/db"
)

// SQLBackend stores chat data in the application SQLite database.
// Timestamps are stored as unix nanoseconds.
type SQLBackend struct {
	database *db.DB
}

func NewSQLBackend(database *db.DB) *SQLBackend {
	return &SQLBackend{database: database}
}

func (b *SQLBackend) CreateConversation(ctx context.Context, conv Conversation) (Conversation, error) {
	err := b.database.RunInTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (kind, title, team_id, league_id, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			string(conv.Kind), conv.Title, db.NullInt64(conv.TeamID), db.NullInt64(conv.LeagueID), conv.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		conv.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("conversation id: %w", err)
		}

		for _, userID := range conv.ParticipantIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
				VALUES (?, ?, ?)`,
				conv.ID, userID, conv.CreatedAt.UnixNano(),
			); err != nil {
				return fmt.Errorf("insert participant %d: %w", userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (b *SQLBackend) ConversationsForUser(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	rows, err := b.database.QueryContext(ctx, `
		SELECT c.id, c.kind, c.title, c.team_id, c.league_id, c.created_at,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_id = c.id
			   AND m.created_at > p.last_read_at
			   AND (m.sender_id IS NULL OR m.sender_id != p.user_id)) AS unread
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	var summaries []ConversationSummary
	for rows.Next() {
		var (
			s         ConversationSummary
			kind      string
			teamID    sql.NullInt64
			leagueID  sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &kind, &s.Title, &teamID, &leagueID, &createdAt, &s.UnreadCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		s.Kind = ConversationKind(kind)
		s.TeamID = nullableID(teamID)
		s.LeagueID = nullableID(leagueID)
		s.CreatedAt = fromNanos(createdAt)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	rows.Close()

	for i := range summaries {
		participants, err := b.participants(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].ParticipantIDs = participants

		last, err := b.lastMessage(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].LastMessage = last
	}

	return summaries, nil
}

func (b *SQLBackend) participants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := b.database.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY joined_at, rowid`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *SQLBackend) lastMessage(ctx context.Context, conversationID int64) (*Message, error) {
	row := b.database.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, kind, body, image_url, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		conversationID,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	return &msg, nil
}

func (b *SQLBackend) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var n int
	err := b.database.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query participant: %w", err)
	}
	return n > 0, nil
}

func (b *SQLBackend) InsertMessage(ctx context.Context, msg Message) error {
	var sender sql.NullInt64
	if msg.SenderID != SystemSenderID {
		sender = sql.NullInt64{Int64: msg.SenderID, Valid: true}
	}
	_, err := b.database.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, kind, body, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.ConversationID, sender, string(msg.Kind), msg.Body, msg.ImageURL, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (b *SQLBackend) ListMessages(ctx context.Context, conversationID int64, q MessageQuery) ([]Message, error) {
	before := int64(1<<63 - 1)
	if !q.Before.IsZero() {
		before = q.Before.UnixNano()
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := b.database.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, kind, body, image_url, created_at
		FROM messages
		WHERE conversation_id = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		conversationID, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (b *SQLBackend) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	res, err := b.database.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = MAX(last_read_at, ?)
		WHERE conversation_id = ? AND user_id = ?`,
		at.UnixNano(), conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("update read mark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read mark rows: %w", err)
	}
	if n == 0 {
		return ErrNotParticipant
	}
	return nil
}

func (b *SQLBackend) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := b.database.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.RowsAffected()
}

// UnreadDigests lists, per user with an email address, messages from others
// that are newer than both the read mark and the last digest.
func (b *SQLBackend) UnreadDigests(ctx context.Context) ([]UnreadDigest, error) {
	rows, err := b.database.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, c.kind, c.title, COUNT(m.id), MAX(m.created_at)
		FROM users u
		JOIN conversation_participants p ON p.user_id = u.id
		JOIN conversations c ON c.id = p.conversation_id
		JOIN messages m ON m.conversation_id = c.id
		WHERE u.email != ''
		  AND m.created_at > p.last_read_at
		  AND m.created_at > u.digest_sent_at
		  AND (m.sender_id IS NULL OR m.sender_id != u.id)
		GROUP BY u.id, c.id
		ORDER BY u.id, c.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query unread digests: %w", err)
	}
	defer rows.Close()

	var digests []UnreadDigest
	for rows.Next() {
		var (
			userID      int64
			name, email string
			kind, title string
			count       int
			newest      int64
		)
		if err := rows.Scan(&userID, &name, &email, &kind, &title, &count, &newest); err != nil {
			return nil, fmt.Errorf("scan unread digest: %w", err)
		}

		if len(digests) == 0 || digests[len(digests)-1].UserID != userID {
			digests = append(digests, UnreadDigest{UserID: userID, Name: name, Email: email})
		}
		d := &digests[len(digests)-1]
		d.Unread += count
		d.Conversations = append(d.Conversations, conversationLabel(ConversationKind(kind), title))
		if t := fromNanos(newest); t.After(d.Newest) {
			d.Newest = t
		}
	}
	return digests, rows.Err()
}

func (b *SQLBackend) MarkDigestSent(ctx context.Context, userID int64, at time.Time) error {
	if _, err := b.database.ExecContext(ctx,
		`UPDATE users SET digest_sent_at = MAX(digest_sent_at, ?) WHERE id = ?`,
		at.UnixNano(), userID,
	); err != nil {
		return fmt.Errorf("update digest mark: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg       Message
		id        string
		sender    sql.NullInt64
		kind      string
		createdAt int64
	)
	if err := row.Scan(&id, &msg.ConversationID, &sender, &kind, &msg.Body, &msg.ImageURL, &createdAt); err != nil {
		return Message{}, err
	}
	parsed, err := parseMessageID(id)
	if err != nil {
		return Message{}, err
	}
	msg.ID = parsed
	if sender.Valid {
		msg.SenderID = sender.Int64
	}
	msg.Kind = MessageKind(kind)
	msg.CreatedAt = fromNanos(createdAt)
	return msg, nil
}

func conversationLabel(kind ConversationKind, title string) string {
	if title != "" {
		return title
	}
	switch kind {
	case ConversationTeam:
		return "Team chat"
	case ConversationLeague:
		return "League chat"
	default:
		return "Direct message"
	}
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
