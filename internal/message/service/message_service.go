package service

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gochat/internal/common"
	"gochat/internal/dbmysql"
	"gochat/internal/message/repository"
)

// MessageService defines the interface exposed to the delivery router and the
// fallback HTTP handler.
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID, content string) (*dbmysql.Message, error)
	History(ctx context.Context, requesterID, peerID string) ([]*dbmysql.Message, error)
	Peers(ctx context.Context, userID string) ([]string, error)
	DeleteConversation(ctx context.Context, userA, userB string) error
}

type messageService struct {
	repo repository.MessageRepository

	// last assigned creation timestamp; clock reads are bumped so timestamps
	// never go backwards within a process and per-sender ordering holds
	mu   sync.Mutex
	last time.Time
}

// Constructor used in DI/wire
func NewMessageService(r repository.MessageRepository) MessageService {
	return &messageService{repo: r}
}

// Send validates, stamps and persists a message with read=false.
func (s *messageService) Send(ctx context.Context, senderID, receiverID, content string) (*dbmysql.Message, error) {
	if senderID == "" {
		return nil, common.NewValidationError("sender ID cannot be empty")
	}
	if receiverID == "" {
		return nil, common.NewValidationError("receiver ID cannot be empty")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, common.NewValidationError("message content cannot be empty")
	}

	msg := &dbmysql.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Read:       false,
		CreatedAt:  s.nextTimestamp(),
	}

	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, common.NewPersistenceError("failed to save message", err)
	}

	return msg, nil
}

// History returns the full pair history ordered by creation time. Fetching
// also flips the server-side read flag for messages addressed to the
// requester; clients keep their own ledger and never rely on that flag.
func (s *messageService) History(ctx context.Context, requesterID, peerID string) ([]*dbmysql.Message, error) {
	if requesterID == "" || peerID == "" {
		return nil, common.NewValidationError("both user IDs are required")
	}

	messages, err := s.repo.History(ctx, requesterID, peerID)
	if err != nil {
		return nil, common.NewPersistenceError("failed to fetch history", err)
	}

	if err := s.repo.MarkConversationRead(ctx, requesterID, peerID); err != nil {
		// best effort: the fetch itself succeeded
		log.Printf("mark conversation read failed for %s<-%s: %v", requesterID, peerID, err)
	}

	return messages, nil
}

func (s *messageService) Peers(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, common.NewValidationError("user ID is required")
	}

	peers, err := s.repo.Peers(ctx, userID)
	if err != nil {
		return nil, common.NewPersistenceError("failed to list peers", err)
	}
	return peers, nil
}

func (s *messageService) DeleteConversation(ctx context.Context, userA, userB string) error {
	if userA == "" || userB == "" {
		return common.NewValidationError("both user IDs are required")
	}
	if err := s.repo.DeleteConversation(ctx, userA, userB); err != nil {
		return common.NewPersistenceError("failed to delete conversation", err)
	}
	return nil
}

func (s *messageService) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}
