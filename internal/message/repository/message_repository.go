package repository

import (
	"context"

	"gorm.io/gorm"

	"gochat/internal/dbmysql"
)

// MessageRepository is the durable store for direct messages. Records are
// append-only: the only update is the read-flag transition, the only delete
// is the bulk conversation delete owned by external collaborators.
type MessageRepository interface {
	Save(ctx context.Context, msg *dbmysql.Message) error
	History(ctx context.Context, userA, userB string) ([]*dbmysql.Message, error)
	Peers(ctx context.Context, userID string) ([]string, error)
	MarkConversationRead(ctx context.Context, receiverID, senderID string) error
	DeleteConversation(ctx context.Context, userA, userB string) error
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Save(ctx context.Context, msg *dbmysql.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// History returns both directions of the pair ordered by created_at ascending.
func (r *messageRepo) History(ctx context.Context, userA, userB string) ([]*dbmysql.Message, error) {
	var messages []*dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Peers returns the distinct set of users the given user has exchanged
// messages with, in either direction.
func (r *messageRepo) Peers(ctx context.Context, userID string) ([]string, error) {
	var sent []string
	if err := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Distinct("receiver_id").
		Where("sender_id = ?", userID).
		Pluck("receiver_id", &sent).Error; err != nil {
		return nil, err
	}

	var received []string
	if err := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Distinct("sender_id").
		Where("receiver_id = ?", userID).
		Pluck("sender_id", &received).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(sent)+len(received))
	peers := make([]string, 0, len(sent)+len(received))
	for _, id := range append(sent, received...) {
		if !seen[id] {
			seen[id] = true
			peers = append(peers, id)
		}
	}
	return peers, nil
}

// MarkConversationRead flips read to true on every unread message sent by
// senderID to receiverID. The flag never reverts.
func (r *messageRepo) MarkConversationRead(ctx context.Context, receiverID, senderID string) error {
	return r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND `read` = ?", receiverID, senderID, false).
		Update("read", true).Error
}

func (r *messageRepo) DeleteConversation(ctx context.Context, userA, userB string) error {
	return r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Delete(&dbmysql.Message{}).Error
}
