package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/blob"
	"dm-service/internal/idem"
	"dm-service/internal/identity"
	"dm-service/internal/models"
	"dm-service/internal/pagination"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) PutMessage(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessagesByConversation(ctx context.Context, conversationID, viewerID string, cursor pagination.Cursor, limit int) ([]models.Message, string, error) {
	args := m.Called(ctx, conversationID, viewerID, cursor, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.String(1), args.Error(2)
}

func (m *MessageRepositoryMock) UpdateMessageState(ctx context.Context, messageID, expectedSenderID, newState string) (models.Message, bool, error) {
	args := m.Called(ctx, messageID, expectedSenderID, newState)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) UpsertPair(ctx context.Context, senderID, receiverID string, last models.LastMessage) error {
	args := m.Called(ctx, senderID, receiverID, last)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) ListForParticipant(ctx context.Context, ownerID string, cursor pagination.Cursor, limit int) ([]models.ConversationSummary, string, error) {
	args := m.Called(ctx, ownerID, cursor, limit)
	var summaries []models.ConversationSummary
	if val := args.Get(0); val != nil {
		summaries = val.([]models.ConversationSummary)
	}
	return summaries, args.String(1), args.Error(2)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, data, contentType)
	return args.String(0), args.Error(1)
}

type IdemStoreMock struct {
	mock.Mock
}

func (m *IdemStoreMock) Claim(ctx context.Context, key, messageID string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, messageID, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) Resolve(ctx context.Context, credential string) (string, error) {
	args := m.Called(ctx, credential)
	return args.String(0), args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ blob.Store = (*BlobStoreMock)(nil)
var _ telemetry.Publisher = (*PublisherMock)(nil)
var _ idem.Store = (*IdemStoreMock)(nil)
var _ identity.Resolver = (*ResolverMock)(nil)
