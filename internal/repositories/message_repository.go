package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrOwnMessageRead  = errors.New("cannot mark own message as read")
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID int, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListMessages(ctx context.Context, chatID, page, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context, chatID int) (int, error)
	MarkRead(ctx context.Context, messageID, readerID int, at time.Time) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageSelect = `SELECT m.id, m.chat_id, m.sender_id, u.username AS sender_username,
    u.avatar_url AS sender_avatar, m.content, m.is_read, m.read_at, m.created_at
    FROM messages m JOIN users u ON u.id = m.sender_id`

// CreateMessage stores a message and returns it with the sender populated.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID int, content string) (models.Message, error) {
	var id int
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content) VALUES ($1, $2, $3) RETURNING id`,
		chatID, senderID, content).Scan(&id)
	if err != nil {
		return models.Message{}, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage retrieves a single message with the sender populated.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, messageSelect+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns one page of chat history, oldest first within the page.
// Pages count backwards from the newest message, matching client catch-up reads.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	query := messageSelect + ` WHERE m.chat_id=$1 ORDER BY m.created_at DESC LIMIT $2 OFFSET $3`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, chatID, limit, (page-1)*limit); err != nil {
		return nil, err
	}
	// oldest first for rendering
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountMessages returns the total number of messages in the chat.
func (r *MessageRepo) CountMessages(ctx context.Context, chatID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE chat_id=$1`, chatID)
	return count, err
}

// MarkRead flips the read flag. Only a recipient may mark a message read;
// the sender gets ErrOwnMessageRead.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, readerID int, at time.Time) (models.Message, error) {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID == readerID {
		return models.Message{}, ErrOwnMessageRead
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read=TRUE, read_at=$2 WHERE id=$1`, messageID, at); err != nil {
		return models.Message{}, err
	}
	msg.IsRead = true
	msg.ReadAt = &at
	return msg, nil
}
