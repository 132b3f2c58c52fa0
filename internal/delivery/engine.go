package delivery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"dm-service/internal/idem"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/presence"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
)

// idemTTL bounds how long a client correlation token deduplicates retries.
const idemTTL = 15 * time.Minute

// Engine turns client intents into durable records, mirrored conversation
// summaries and push events. Message states move sent -> recalled or
// sent -> deleted, both terminal.
type Engine struct {
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	registry      *presence.Registry
	dedupe        idem.Store
	emitter       *telemetry.Emitter
	maxTextLength int
}

// NewEngine builds an Engine.
func NewEngine(messages repositories.MessageRepository, conversations repositories.ConversationRepository, registry *presence.Registry, dedupe idem.Store, emitter *telemetry.Emitter, maxTextLength int) *Engine {
	if maxTextLength <= 0 {
		maxTextLength = 200
	}
	return &Engine{
		messages:      messages,
		conversations: conversations,
		registry:      registry,
		dedupe:        dedupe,
		emitter:       emitter,
		maxTextLength: maxTextLength,
	}
}

// Send validates and persists a new message, mirrors both conversation
// summaries and pushes it to the receiver if connected. A client correlation
// token makes retried sends idempotent: a duplicate claim returns the
// originally persisted message without a second row or push.
func (e *Engine) Send(ctx context.Context, senderID, receiverID, content, kind, clientToken string) (models.Message, error) {
	if err := e.validateSend(senderID, receiverID, content, kind); err != nil {
		return models.Message{}, err
	}

	messageID := uuid.NewString()
	if clientToken != "" && e.dedupe != nil {
		claimed, fresh, err := e.dedupe.Claim(ctx, senderID+":"+clientToken, messageID, idemTTL)
		if err != nil {
			log.Printf("idempotency claim failed, proceeding: %v", err)
		} else if !fresh {
			if existing, getErr := e.messages.GetMessage(ctx, claimed); getErr == nil {
				return existing, nil
			}
			// The first attempt claimed the token but never persisted;
			// finish its send under the claimed id.
			messageID = claimed
		}
	}

	msg := models.Message{
		MessageID:      messageID,
		ConversationID: models.ConversationID(senderID, receiverID),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		Kind:           kind,
		DeliveryState:  models.StateSent,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.messages.PutMessage(ctx, msg); err != nil {
		return models.Message{}, err
	}

	e.mirrorSummaries(ctx, msg.SenderID, msg.ReceiverID, models.LastMessage{
		Content:   msg.Content,
		SenderID:  msg.SenderID,
		Timestamp: msg.CreatedAt,
	})

	e.push(msg.ReceiverID, models.PushEvent{Type: models.EventNewMessage, Message: &msg})
	e.emit(ctx, "delivery.sent", "message_sent", msg)
	return msg, nil
}

// Recall retracts a message's content globally. Only the sender may recall;
// recalling an already-terminal message is a no-op success with no second
// push.
func (e *Engine) Recall(ctx context.Context, requesterID, messageID string) (models.Message, error) {
	msg, changed, err := e.messages.UpdateMessageState(ctx, messageID, requesterID, models.StateRecalled)
	if err != nil {
		return models.Message{}, err
	}
	if !changed {
		return msg, nil
	}

	e.mirrorSummaries(ctx, msg.SenderID, msg.ReceiverID, models.LastMessage{
		Content:   models.RecalledPlaceholder,
		SenderID:  requesterID,
		Timestamp: time.Now().UTC(),
	})

	e.push(peerOf(msg, requesterID), models.PushEvent{
		Type:           models.EventMessageRecalled,
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
		Content:        models.RecalledPlaceholder,
	})
	e.emit(ctx, "delivery.recalled", "message_recalled", msg)
	return msg, nil
}

// Delete suppresses a message for the deleting sender only. The peer keeps
// seeing the message; the push event carries ids only, content is not
// resent.
func (e *Engine) Delete(ctx context.Context, requesterID, messageID string) (models.Message, error) {
	msg, changed, err := e.messages.UpdateMessageState(ctx, messageID, requesterID, models.StateDeleted)
	if err != nil {
		return models.Message{}, err
	}
	if !changed {
		return msg, nil
	}

	e.push(peerOf(msg, requesterID), models.PushEvent{
		Type:           models.EventMessageDeleted,
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
	})
	e.emit(ctx, "delivery.deleted", "message_deleted", msg)
	return msg, nil
}

// Forward creates a brand-new message from an existing one, keeping lineage
// through the original message id. The source message is never mutated.
func (e *Engine) Forward(ctx context.Context, requesterID, sourceMessageID, receiverID, overrideContent string) (models.Message, error) {
	source, err := e.messages.GetMessage(ctx, sourceMessageID)
	if err != nil {
		return models.Message{}, err
	}

	content := source.Content
	if overrideContent != "" {
		if len([]rune(overrideContent)) > e.maxTextLength {
			return models.Message{}, fmt.Errorf("%w: content exceeds %d characters", repositories.ErrValidation, e.maxTextLength)
		}
		content = overrideContent
	}
	if receiverID == "" {
		return models.Message{}, fmt.Errorf("%w: receiver is required", repositories.ErrValidation)
	}

	original := source.MessageID
	msg := models.Message{
		MessageID:         uuid.NewString(),
		ConversationID:    models.ConversationID(requesterID, receiverID),
		SenderID:          requesterID,
		ReceiverID:        receiverID,
		Content:           content,
		Kind:              models.KindForwarded,
		OriginalMessageID: &original,
		DeliveryState:     models.StateSent,
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.messages.PutMessage(ctx, msg); err != nil {
		return models.Message{}, err
	}

	e.mirrorSummaries(ctx, msg.SenderID, msg.ReceiverID, models.LastMessage{
		Content:   msg.Content,
		SenderID:  msg.SenderID,
		Timestamp: msg.CreatedAt,
	})

	e.push(msg.ReceiverID, models.PushEvent{Type: models.EventNewMessage, Message: &msg})
	e.emit(ctx, "delivery.forwarded", "message_forwarded", msg)
	return msg, nil
}

// Typing relays an ephemeral typing indicator. Nothing is persisted and an
// absent receiver silently drops the signal.
func (e *Engine) Typing(senderID, receiverID string, stop bool) {
	eventType := models.EventTyping
	if stop {
		eventType = models.EventStopTyping
	}
	e.push(receiverID, models.PushEvent{Type: eventType, SenderID: senderID})
}

func (e *Engine) validateSend(senderID, receiverID, content, kind string) error {
	if senderID == "" || receiverID == "" {
		return fmt.Errorf("%w: sender and receiver are required", repositories.ErrValidation)
	}
	switch kind {
	case models.KindText:
		if content == "" {
			return fmt.Errorf("%w: text content is empty", repositories.ErrValidation)
		}
		if len([]rune(content)) > e.maxTextLength {
			return fmt.Errorf("%w: content exceeds %d characters", repositories.ErrValidation, e.maxTextLength)
		}
	case models.KindFile:
		if content == "" {
			return fmt.Errorf("%w: file reference is empty", repositories.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown message kind %q", repositories.ErrValidation, kind)
	}
	return nil
}

// mirrorSummaries writes both owner rows. A partial failure leaves the pair
// divergent until the next message repairs it; the send itself already
// succeeded, so the failure is recorded but not surfaced.
func (e *Engine) mirrorSummaries(ctx context.Context, senderID, receiverID string, last models.LastMessage) {
	if err := e.conversations.UpsertPair(ctx, senderID, receiverID, last); err != nil {
		log.Printf("conversation pair write incomplete for %s: %v", models.ConversationID(senderID, receiverID), err)
		observability.IncPairDivergence()
	}
}

func (e *Engine) push(participantID string, event models.PushEvent) {
	session, ok := e.registry.Lookup(participantID)
	if !ok {
		return
	}
	if err := session.Send(event); err != nil {
		log.Printf("push %s to %s failed: %v", event.Type, participantID, err)
		return
	}
	observability.IncPushEvent(event.Type)
}

func (e *Engine) emit(ctx context.Context, routingKey, eventType string, msg models.Message) {
	e.emitter.Emit(ctx, routingKey, eventType, &msg.SenderID, telemetry.EventPayload{
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
	})
}

func peerOf(msg models.Message, participantID string) string {
	if msg.SenderID == participantID {
		return msg.ReceiverID
	}
	return msg.SenderID
}
