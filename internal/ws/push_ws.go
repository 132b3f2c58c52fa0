package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"dm-service/internal/delivery"
	"dm-service/internal/identity"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/presence"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
)

// PushHandler owns the persistent push connections.
type PushHandler struct {
	registry *presence.Registry
	engine   *delivery.Engine
	resolver identity.Resolver
	emitter  *telemetry.Emitter
}

// NewPushHandler constructs a PushHandler.
func NewPushHandler(registry *presence.Registry, engine *delivery.Engine, resolver identity.Resolver, emitter *telemetry.Emitter) *PushHandler {
	return &PushHandler{registry: registry, engine: engine, resolver: resolver, emitter: emitter}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the participant's session and
// runs the read loop until disconnect.
func (h *PushHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	credential := bearerToken(c)
	participantID, err := h.resolver.Resolve(ctx, credential)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:        newConnID(),
		ParticipantID: participantID,
		DeviceID:      observability.DeviceIDFromRequest(c.Request),
		IP:            observability.IPFromRequest(c.Request),
		RequestID:     observability.RequestIDFromRequest(c.Request),
		TraceID:       span.SpanContext().TraceID().String(),
		ConnectedAt:   time.Now(),
	}
	session := NewSession(conn, info)
	h.registry.Register(participantID, session)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emitter.Emit(ctx, "ws.connect", "ws_connect", &participantID, telemetry.EventPayload{Detail: info.ConnID})

	go h.readLoop(participantID, session)
}

func (h *PushHandler) readLoop(participantID string, session *Session) {
	var closeReason string
	defer func() {
		h.registry.Unregister(participantID, session)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.emitter.Emit(context.Background(), "ws.disconnect", "ws_disconnect", &participantID, telemetry.EventPayload{Detail: closeReason})
		session.Close()
	}()

	for {
		_, raw, err := session.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			_ = session.Send(models.PushEvent{Type: models.EventError, Reason: "malformed frame"})
			continue
		}
		h.dispatch(participantID, session, frame)
	}
}

func (h *PushHandler) dispatch(participantID string, session *Session, frame models.ClientFrame) {
	switch frame.Type {
	case "send-message":
		kind := frame.Kind
		if kind == "" {
			kind = models.KindText
		}
		msg, err := h.engine.Send(context.Background(), participantID, frame.ReceiverID, frame.Content, kind, frame.ClientToken)
		if err != nil {
			_ = session.Send(models.PushEvent{Type: models.EventError, Reason: sendFailureReason(err), ClientToken: frame.ClientToken})
			return
		}
		// The ack is the correlation point for optimistically rendered
		// messages; the client token comes back with the final id.
		_ = session.Send(models.PushEvent{
			Type:           models.EventMessageSent,
			MessageID:      msg.MessageID,
			ConversationID: msg.ConversationID,
			ClientToken:    frame.ClientToken,
		})
	case "typing":
		h.engine.Typing(participantID, frame.ReceiverID, false)
	case "stop-typing":
		h.engine.Typing(participantID, frame.ReceiverID, true)
	default:
		_ = session.Send(models.PushEvent{Type: models.EventError, Reason: "unknown frame type"})
	}
}

// sendFailureReason keeps storage details away from clients while validation
// problems stay specific.
func sendFailureReason(err error) string {
	if errors.Is(err, repositories.ErrValidation) {
		return err.Error()
	}
	return "failed to send message, try again"
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
