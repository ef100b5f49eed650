package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"social-chat-service/internal/broker"
	"social-chat-service/internal/models"
	"social-chat-service/internal/observability"
	"social-chat-service/internal/repositories"
)

const joinDeadline = 10 * time.Second

// TokenVerifier authenticates the credential carried by a join event.
type TokenVerifier interface {
	Validate(ctx context.Context, token string) (int, error)
}

// Handler owns the realtime endpoint: it upgrades connections, requires a
// join event as the first frame, and routes every later client event to the
// broker.
type Handler struct {
	hub    *Hub
	broker *broker.Broker
	tokens TokenVerifier
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, b *broker.Broker, tokens TokenVerifier) *Handler {
	return &Handler{hub: hub, broker: b, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, authenticates it and runs the read loop.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("social-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := newConn(wsConn)
	go conn.writePump()

	userID, err := h.awaitJoin(ctx, wsConn)
	if err != nil {
		h.sendError(conn, "invalid credentials")
		conn.Close()
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.Add(userID, conn, info)
	h.broker.ClientConnected(ctx, userID)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishWSEvent(ctx, "ws_connect", info, "")

	h.readLoop(ctx, conn, wsConn, info)
}

func (h *Handler) awaitJoin(ctx context.Context, wsConn *websocket.Conn) (int, error) {
	_ = wsConn.SetReadDeadline(time.Now().Add(joinDeadline))
	defer wsConn.SetReadDeadline(time.Time{})

	_, data, err := wsConn.ReadMessage()
	if err != nil {
		return 0, err
	}
	var ev models.ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return 0, err
	}
	if ev.Type != models.ClientJoin {
		return 0, errors.New("first event must be join")
	}
	return h.tokens.Validate(ctx, ev.Token)
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn, wsConn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.Remove(info.UserID, conn)
		h.broker.ClientDisconnected(context.Background(), info.UserID)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishWSEvent(ctx, "ws_disconnect", info, closeReason)
		conn.Close()
	}()

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				publishWSEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			h.sendError(conn, "malformed event")
			continue
		}
		h.dispatch(ctx, conn, info.UserID, ev)
	}
}

// dispatch matches the client event union exhaustively. Unrecognized shapes
// are rejected, never silently dropped.
func (h *Handler) dispatch(ctx context.Context, conn *Conn, userID int, ev models.ClientEvent) {
	observability.IncWSEvent(ev.Type)
	switch ev.Type {
	case models.ClientJoin:
		h.sendError(conn, "already joined")

	case models.ClientMessage:
		conv := conversationFor(userID, ev.ReceiverID, ev.IsGroup)
		payload := models.MessagePayload{Text: ev.Text, File: ev.File, Audio: ev.Audio}
		if _, err := h.broker.Send(ctx, userID, conv, payload); err != nil {
			h.sendError(conn, errorMessage(err))
		}

	case models.ClientTyping, models.ClientStopTyping:
		conv := conversationFor(userID, ev.ChatID, ev.IsGroup)
		isTyping := ev.Type == models.ClientTyping
		if err := h.broker.NotifyTyping(ctx, userID, conv, isTyping); err != nil {
			h.sendError(conn, errorMessage(err))
		}

	case models.ClientReact:
		if _, err := h.broker.React(ctx, userID, ev.MessageID, ev.Emoji); err != nil {
			h.sendError(conn, errorMessage(err))
		}

	case models.ClientStar:
		starred := true
		if ev.Starred != nil {
			starred = *ev.Starred
		}
		if _, err := h.broker.SetStarred(ctx, userID, ev.MessageID, starred); err != nil {
			h.sendError(conn, errorMessage(err))
		}

	case models.ClientEdit:
		if _, err := h.broker.Edit(ctx, userID, ev.MessageID, ev.NewText); err != nil {
			h.sendError(conn, errorMessage(err))
		}

	case models.ClientDelete:
		if _, err := h.broker.Delete(ctx, userID, ev.MessageID); err != nil {
			h.sendError(conn, errorMessage(err))
		}

	default:
		h.sendError(conn, "unknown event type: "+ev.Type)
	}
}

func (h *Handler) sendError(conn *Conn, msg string) {
	payload, err := json.Marshal(models.ServerEvent{Type: models.ServerError, Error: msg})
	if err != nil {
		return
	}
	conn.enqueue(payload)
}

// conversationFor resolves the conversation a client event addresses: the
// peer id for a direct chat, the group id for a group chat.
func conversationFor(userID, targetID int, isGroup bool) models.ConversationRef {
	if isGroup {
		return models.GroupConversation(targetID)
	}
	return models.DirectConversation(userID, targetID)
}

func errorMessage(err error) string {
	var vErr *broker.ValidationError
	var sErr *broker.StoreError
	switch {
	case errors.As(err, &vErr):
		return vErr.Error()
	case errors.As(err, &sErr):
		return "temporarily unavailable, please retry"
	case errors.Is(err, broker.ErrNotParticipant):
		return "not a participant in this conversation"
	case errors.Is(err, broker.ErrNotSender):
		return "only the sender may modify this message"
	case errors.Is(err, repositories.ErrMessageNotFound):
		return "message not found"
	default:
		return "operation failed"
	}
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
