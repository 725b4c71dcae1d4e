package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gochat/internal/common"
	"gochat/internal/dbmysql"
	"gochat/internal/message/service/mocks"
)

func TestMessageService_Send(t *testing.T) {
	tests := []struct {
		name        string
		senderID    string
		receiverID  string
		content     string
		mockSetup   func(*mocks.MockMessageRepository)
		expectError bool
		errorKind   common.Kind
	}{
		{
			name:       "successful send",
			senderID:   "user-a",
			receiverID: "user-b",
			content:    "Hello, world!",
			mockSetup: func(repo *mocks.MockMessageRepository) {
				repo.EXPECT().
					Save(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, msg *dbmysql.Message) error {
						assert.NotEmpty(t, msg.ID)
						assert.False(t, msg.Read)
						assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Second)
						return nil
					}).
					Times(1)
			},
			expectError: false,
		},
		{
			name:        "empty sender ID",
			senderID:    "",
			receiverID:  "user-b",
			content:     "hello",
			mockSetup:   func(repo *mocks.MockMessageRepository) {},
			expectError: true,
			errorKind:   common.KindValidation,
		},
		{
			name:        "empty receiver ID",
			senderID:    "user-a",
			receiverID:  "",
			content:     "hello",
			mockSetup:   func(repo *mocks.MockMessageRepository) {},
			expectError: true,
			errorKind:   common.KindValidation,
		},
		{
			name:        "whitespace-only content",
			senderID:    "user-a",
			receiverID:  "user-b",
			content:     "   \t\n ",
			mockSetup:   func(repo *mocks.MockMessageRepository) {},
			expectError: true,
			errorKind:   common.KindValidation,
		},
		{
			name:       "repository save error",
			senderID:   "user-a",
			receiverID: "user-b",
			content:    "hello",
			mockSetup: func(repo *mocks.MockMessageRepository) {
				repo.EXPECT().
					Save(gomock.Any(), gomock.Any()).
					Return(assert.AnError).
					Times(1)
			},
			expectError: true,
			errorKind:   common.KindPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := mocks.NewMockMessageRepository(ctrl)
			tt.mockSetup(mockRepo)

			svc := NewMessageService(mockRepo)
			msg, err := svc.Send(context.Background(), tt.senderID, tt.receiverID, tt.content)

			if tt.expectError {
				assert.Error(t, err)
				assert.Equal(t, tt.errorKind, common.KindOf(err))
				assert.Nil(t, msg)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, msg)
				assert.Equal(t, tt.senderID, msg.SenderID)
				assert.Equal(t, tt.receiverID, msg.ReceiverID)
			}
		})
	}
}

func TestMessageService_Send_TrimsContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().
		Save(gomock.Any(), gomock.Any()).
		Return(nil).
		Times(1)

	svc := NewMessageService(mockRepo)
	msg, err := svc.Send(context.Background(), "user-a", "user-b", "  hello  ")

	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
}

func TestMessageService_Send_MonotonicTimestamps(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().
		Save(gomock.Any(), gomock.Any()).
		Return(nil).
		Times(10)

	svc := NewMessageService(mockRepo)

	var prev time.Time
	for i := 0; i < 10; i++ {
		msg, err := svc.Send(context.Background(), "user-a", "user-b", "tick")
		require.NoError(t, err)
		assert.True(t, msg.CreatedAt.After(prev), "timestamps must strictly increase")
		prev = msg.CreatedAt
	}
}

func TestMessageService_History(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMessageRepository(ctrl)
	messages := []*dbmysql.Message{
		{ID: "msg-1", SenderID: "user-b", ReceiverID: "user-a", Content: "hey"},
		{ID: "msg-2", SenderID: "user-a", ReceiverID: "user-b", Content: "hi"},
	}

	mockRepo.EXPECT().
		History(gomock.Any(), "user-a", "user-b").
		Return(messages, nil).
		Times(1)
	// fetching marks the requester's side read (server-side flag)
	mockRepo.EXPECT().
		MarkConversationRead(gomock.Any(), "user-a", "user-b").
		Return(nil).
		Times(1)

	svc := NewMessageService(mockRepo)
	got, err := svc.History(context.Background(), "user-a", "user-b")

	assert.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMessageService_History_MarkReadFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().
		History(gomock.Any(), "user-a", "user-b").
		Return([]*dbmysql.Message{}, nil).
		Times(1)
	mockRepo.EXPECT().
		MarkConversationRead(gomock.Any(), "user-a", "user-b").
		Return(assert.AnError).
		Times(1)

	svc := NewMessageService(mockRepo)
	got, err := svc.History(context.Background(), "user-a", "user-b")

	assert.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMessageService_History_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := NewMessageService(mocks.NewMockMessageRepository(ctrl))
	_, err := svc.History(context.Background(), "", "user-b")

	assert.True(t, common.IsValidation(err))
}

func TestMessageService_Peers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().
		Peers(gomock.Any(), "user-a").
		Return([]string{"user-b", "user-c"}, nil).
		Times(1)

	svc := NewMessageService(mockRepo)
	peers, err := svc.Peers(context.Background(), "user-a")

	assert.NoError(t, err)
	assert.Equal(t, []string{"user-b", "user-c"}, peers)
}

func TestMessageService_DeleteConversation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().
		DeleteConversation(gomock.Any(), "user-a", "user-b").
		Return(nil).
		Times(1)

	svc := NewMessageService(mockRepo)
	assert.NoError(t, svc.DeleteConversation(context.Background(), "user-a", "user-b"))
}
