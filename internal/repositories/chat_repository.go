package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrNotEnoughMembers = errors.New("group chat needs at least three participants")
	ErrSelfChat         = errors.New("cannot create chat with self")
)

// ChatRepository abstracts conversation persistence.
type ChatRepository interface {
	CreateOrGetDirectChat(ctx context.Context, userID, participantID int) (models.Chat, error)
	CreateGroupChat(ctx context.Context, name string, adminID int, participantIDs []int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error)
	SetLastMessage(ctx context.Context, chatID, messageID int, at time.Time) error
	RenameGroup(ctx context.Context, chatID int, name string) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, is_group, name, admin_id, last_message_id, created_at, updated_at`

// CreateOrGetDirectChat returns the existing direct chat between the two users
// or creates a new one. Exactly two participants, enforced here.
func (r *ChatRepo) CreateOrGetDirectChat(ctx context.Context, userID, participantID int) (models.Chat, error) {
	if userID == participantID {
		return models.Chat{}, ErrSelfChat
	}
	pair := []int{userID, participantID}
	sort.Ints(pair)

	var chat models.Chat
	query := `SELECT c.id, c.is_group, c.name, c.admin_id, c.last_message_id, c.created_at, c.updated_at
        FROM chats c
        JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = $1
        JOIN chat_participants p2 ON p2.chat_id = c.id AND p2.user_id = $2
        WHERE c.is_group = FALSE`
	err := r.db.GetContext(ctx, &chat, query, pair[0], pair[1])
	if err == nil {
		return r.withParticipants(ctx, chat)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group) VALUES (FALSE) RETURNING `+chatColumns).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}
	for _, id := range pair {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return r.withParticipants(ctx, chat)
}

// CreateGroupChat creates a named group with the admin included as a member.
// The three-participant minimum counts the admin.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, name string, adminID int, participantIDs []int) (models.Chat, error) {
	members := map[int]bool{adminID: true}
	for _, id := range participantIDs {
		members[id] = true
	}
	if len(members) < 3 {
		return models.Chat{}, ErrNotEnoughMembers
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	var chat models.Chat
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, name, admin_id) VALUES (TRUE, $1, $2) RETURNING `+chatColumns,
		name, adminID).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}
	for id := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return r.withParticipants(ctx, chat)
}

// GetChat fetches a chat with its participants populated.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return r.withParticipants(ctx, chat)
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// ListChatsForUser returns the user's chats, most recently active first, with
// participants and the last message populated.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	var chats []models.Chat
	query := `SELECT c.id, c.is_group, c.name, c.admin_id, c.last_message_id, c.created_at, c.updated_at
        FROM chats c
        JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = $1
        ORDER BY c.updated_at DESC`
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, err
	}

	for i := range chats {
		filled, err := r.withParticipants(ctx, chats[i])
		if err != nil {
			return nil, err
		}
		if filled.LastMessageID != nil {
			var msg models.Message
			err := r.db.GetContext(ctx, &msg, `SELECT m.id, m.chat_id, m.sender_id, u.username AS sender_username,
                u.avatar_url AS sender_avatar, m.content, m.is_read, m.read_at, m.created_at
                FROM messages m JOIN users u ON u.id = m.sender_id WHERE m.id=$1`, *filled.LastMessageID)
			if err == nil {
				filled.LastMessage = &msg
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}
		chats[i] = filled
	}
	return chats, nil
}

// SetLastMessage records the newest message on the chat and bumps its activity time.
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID, messageID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message_id=$2, updated_at=$3 WHERE id=$1`, chatID, messageID, at)
	return err
}

// RenameGroup updates a group chat's display name.
func (r *ChatRepo) RenameGroup(ctx context.Context, chatID int, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET name=$2, updated_at=NOW() WHERE id=$1 AND is_group=TRUE`, chatID, name)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (r *ChatRepo) withParticipants(ctx context.Context, chat models.Chat) (models.Chat, error) {
	var users []models.User
	query := `SELECT u.id, u.username, u.email, u.password_hash, u.avatar_url, u.is_online, u.last_seen, u.created_at
        FROM users u JOIN chat_participants p ON p.user_id = u.id
        WHERE p.chat_id=$1 ORDER BY u.id ASC`
	if err := r.db.SelectContext(ctx, &users, query, chat.ID); err != nil {
		return models.Chat{}, err
	}
	chat.Participants = users
	return chat, nil
}
