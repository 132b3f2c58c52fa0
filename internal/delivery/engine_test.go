package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/presence"
	"dm-service/internal/repositories"
)

type fakeSession struct {
	id     string
	mu     sync.Mutex
	events []models.PushEvent
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(event models.PushEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSession) received() []models.PushEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PushEvent, len(f.events))
	copy(out, f.events)
	return out
}

func TestSendDeliversToConnectedReceiver(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	registry := presence.NewRegistry()
	receiver := &fakeSession{id: "c-bob"}
	registry.Register("bob", receiver)

	engine := NewEngine(msgs, convs, registry, nil, nil, 200)

	msgs.On("PutMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == "alice" && m.ReceiverID == "bob" &&
			m.Content == "hi" && m.Kind == models.KindText &&
			m.DeliveryState == models.StateSent && m.ConversationID == "alice_bob"
	})).Return(nil).Once()
	convs.On("UpsertPair", mock.Anything, "alice", "bob", mock.MatchedBy(func(last models.LastMessage) bool {
		return last.Content == "hi" && last.SenderID == "alice"
	})).Return(nil).Once()

	msg, err := engine.Send(context.Background(), "alice", "bob", "hi", models.KindText, "")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, "alice_bob", msg.ConversationID)

	events := receiver.received()
	require.Len(t, events, 1, "exactly one push per send")
	assert.Equal(t, models.EventNewMessage, events[0].Type)
	require.NotNil(t, events[0].Message)
	assert.Equal(t, "hi", events[0].Message.Content)

	msgs.AssertExpectations(t)
	convs.AssertExpectations(t)
}

func TestSendToOfflineReceiverStillPersists(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	engine := NewEngine(msgs, convs, presence.NewRegistry(), nil, nil, 200)

	msgs.On("PutMessage", mock.Anything, mock.Anything).Return(nil).Once()
	convs.On("UpsertPair", mock.Anything, "alice", "bob", mock.Anything).Return(nil).Once()

	msg, err := engine.Send(context.Background(), "alice", "bob", "hi", models.KindText, "")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.MessageID)

	msgs.AssertExpectations(t)
	convs.AssertExpectations(t)
}

func TestSendRejectsOverlongText(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	engine := NewEngine(msgs, convs, presence.NewRegistry(), nil, nil, 200)

	long := make([]rune, 250)
	for i := range long {
		long[i] = 'a'
	}

	_, err := engine.Send(context.Background(), "alice", "bob", string(long), models.KindText, "")
	assert.ErrorIs(t, err, repositories.ErrValidation)
	msgs.AssertNotCalled(t, "PutMessage", mock.Anything, mock.Anything)
}

func TestSendRejectsEmptyText(t *testing.T) {
	engine := NewEngine(new(mocks.MessageRepositoryMock), new(mocks.ConversationRepositoryMock), presence.NewRegistry(), nil, nil, 200)

	_, err := engine.Send(context.Background(), "alice", "bob", "", models.KindText, "")
	assert.ErrorIs(t, err, repositories.ErrValidation)
}

func TestSendHonorsConfiguredLimit(t *testing.T) {
	engine := NewEngine(new(mocks.MessageRepositoryMock), new(mocks.ConversationRepositoryMock), presence.NewRegistry(), nil, nil, 5)

	_, err := engine.Send(context.Background(), "alice", "bob", "too long here", models.KindText, "")
	assert.ErrorIs(t, err, repositories.ErrValidation)
}

func TestSendDuplicateTokenReturnsOriginalMessage(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	dedupe := new(mocks.IdemStoreMock)
	registry := presence.NewRegistry()
	receiver := &fakeSession{id: "c-bob"}
	registry.Register("bob", receiver)

	engine := NewEngine(msgs, convs, registry, dedupe, nil, 200)

	original := models.Message{MessageID: "m-1", ConversationID: "alice_bob", SenderID: "alice", ReceiverID: "bob", Content: "hi", Kind: models.KindText, DeliveryState: models.StateSent}
	dedupe.On("Claim", mock.Anything, "alice:tok-1", mock.Anything, mock.Anything).Return("m-1", false, nil).Once()
	msgs.On("GetMessage", mock.Anything, "m-1").Return(original, nil).Once()

	msg, err := engine.Send(context.Background(), "alice", "bob", "hi", models.KindText, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.MessageID)

	msgs.AssertNotCalled(t, "PutMessage", mock.Anything, mock.Anything)
	assert.Empty(t, receiver.received(), "duplicate send must not push again")
}

func TestSendSurvivesPairWriteFailure(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	engine := NewEngine(msgs, convs, presence.NewRegistry(), nil, nil, 200)

	msgs.On("PutMessage", mock.Anything, mock.Anything).Return(nil).Once()
	convs.On("UpsertPair", mock.Anything, "alice", "bob", mock.Anything).Return(repositories.ErrStorageUnavailable).Once()

	msg, err := engine.Send(context.Background(), "alice", "bob", "hi", models.KindText, "")
	require.NoError(t, err, "the message row is the durable source of truth")
	assert.NotEmpty(t, msg.MessageID)
}

func TestRecallByNonSenderForbidden(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	engine := NewEngine(msgs, new(mocks.ConversationRepositoryMock), presence.NewRegistry(), nil, nil, 200)

	msgs.On("UpdateMessageState", mock.Anything, "m-1", "mallory", models.StateRecalled).
		Return(models.Message{}, false, repositories.ErrForbidden).Once()

	_, err := engine.Recall(context.Background(), "mallory", "m-1")
	assert.ErrorIs(t, err, repositories.ErrForbidden)
}

func TestRecallPushesPlaceholderToPeer(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	registry := presence.NewRegistry()
	peer := &fakeSession{id: "c-bob"}
	registry.Register("bob", peer)

	engine := NewEngine(msgs, convs, registry, nil, nil, 200)

	recalled := models.Message{MessageID: "m-1", ConversationID: "alice_bob", SenderID: "alice", ReceiverID: "bob", Content: models.RecalledPlaceholder, DeliveryState: models.StateRecalled}
	msgs.On("UpdateMessageState", mock.Anything, "m-1", "alice", models.StateRecalled).Return(recalled, true, nil).Once()
	convs.On("UpsertPair", mock.Anything, "alice", "bob", mock.MatchedBy(func(last models.LastMessage) bool {
		return last.Content == models.RecalledPlaceholder
	})).Return(nil).Once()

	msg, err := engine.Recall(context.Background(), "alice", "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateRecalled, msg.DeliveryState)

	events := peer.received()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMessageRecalled, events[0].Type)
	assert.Equal(t, "m-1", events[0].MessageID)
	assert.Equal(t, models.RecalledPlaceholder, events[0].Content)

	convs.AssertExpectations(t)
}

func TestRecallIdempotentNoSecondPush(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	registry := presence.NewRegistry()
	peer := &fakeSession{id: "c-bob"}
	registry.Register("bob", peer)

	engine := NewEngine(msgs, convs, registry, nil, nil, 200)

	already := models.Message{MessageID: "m-1", SenderID: "alice", ReceiverID: "bob", DeliveryState: models.StateRecalled}
	msgs.On("UpdateMessageState", mock.Anything, "m-1", "alice", models.StateRecalled).Return(already, false, nil).Once()

	msg, err := engine.Recall(context.Background(), "alice", "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateRecalled, msg.DeliveryState)
	assert.Empty(t, peer.received())
	convs.AssertNotCalled(t, "UpsertPair", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeletePushesIDsOnly(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	registry := presence.NewRegistry()
	peer := &fakeSession{id: "c-bob"}
	registry.Register("bob", peer)

	engine := NewEngine(msgs, new(mocks.ConversationRepositoryMock), registry, nil, nil, 200)

	deleted := models.Message{MessageID: "m-1", ConversationID: "alice_bob", SenderID: "alice", ReceiverID: "bob", Content: "secret", DeliveryState: models.StateDeleted}
	msgs.On("UpdateMessageState", mock.Anything, "m-1", "alice", models.StateDeleted).Return(deleted, true, nil).Once()

	_, err := engine.Delete(context.Background(), "alice", "m-1")
	require.NoError(t, err)

	events := peer.received()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMessageDeleted, events[0].Type)
	assert.Equal(t, "m-1", events[0].MessageID)
	assert.Equal(t, "alice_bob", events[0].ConversationID)
	assert.Empty(t, events[0].Content, "content is not resent on delete")
}

func TestForwardCreatesNewMessageWithLineage(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	engine := NewEngine(msgs, convs, presence.NewRegistry(), nil, nil, 200)

	source := models.Message{MessageID: "m-src", ConversationID: "alice_bob", SenderID: "bob", ReceiverID: "alice", Content: "original", Kind: models.KindText, DeliveryState: models.StateSent, CreatedAt: time.Now()}
	msgs.On("GetMessage", mock.Anything, "m-src").Return(source, nil).Once()
	msgs.On("PutMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.MessageID != "m-src" && m.Kind == models.KindForwarded &&
			m.OriginalMessageID != nil && *m.OriginalMessageID == "m-src" &&
			m.Content == "original" && m.SenderID == "alice" && m.ReceiverID == "carol"
	})).Return(nil).Once()
	convs.On("UpsertPair", mock.Anything, "alice", "carol", mock.Anything).Return(nil).Once()

	msg, err := engine.Forward(context.Background(), "alice", "m-src", "carol", "")
	require.NoError(t, err)
	assert.NotEqual(t, "m-src", msg.MessageID)
	require.NotNil(t, msg.OriginalMessageID)
	assert.Equal(t, "m-src", *msg.OriginalMessageID)
	assert.Equal(t, models.KindForwarded, msg.Kind)

	msgs.AssertExpectations(t)
}

func TestForwardWithOverrideContent(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	engine := NewEngine(msgs, convs, presence.NewRegistry(), nil, nil, 200)

	source := models.Message{MessageID: "m-src", SenderID: "bob", ReceiverID: "alice", Content: "original", Kind: models.KindText}
	msgs.On("GetMessage", mock.Anything, "m-src").Return(source, nil).Once()
	msgs.On("PutMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Content == "replacement"
	})).Return(nil).Once()
	convs.On("UpsertPair", mock.Anything, "alice", "carol", mock.Anything).Return(nil).Once()

	_, err := engine.Forward(context.Background(), "alice", "m-src", "carol", "replacement")
	require.NoError(t, err)
	msgs.AssertExpectations(t)
}

func TestForwardMissingSource(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	engine := NewEngine(msgs, new(mocks.ConversationRepositoryMock), presence.NewRegistry(), nil, nil, 200)

	msgs.On("GetMessage", mock.Anything, "gone").Return(models.Message{}, repositories.ErrNotFound).Once()

	_, err := engine.Forward(context.Background(), "alice", "gone", "carol", "")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestTypingReachesConnectedReceiver(t *testing.T) {
	registry := presence.NewRegistry()
	receiver := &fakeSession{id: "c-bob"}
	registry.Register("bob", receiver)

	engine := NewEngine(new(mocks.MessageRepositoryMock), new(mocks.ConversationRepositoryMock), registry, nil, nil, 200)

	engine.Typing("alice", "bob", false)
	engine.Typing("alice", "bob", true)

	events := receiver.received()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTyping, events[0].Type)
	assert.Equal(t, models.EventStopTyping, events[1].Type)
	assert.Equal(t, "alice", events[0].SenderID)
}

func TestTypingToOfflineReceiverDroppedSilently(t *testing.T) {
	engine := NewEngine(new(mocks.MessageRepositoryMock), new(mocks.ConversationRepositoryMock), presence.NewRegistry(), nil, nil, 200)
	engine.Typing("alice", "bob", false)
}
