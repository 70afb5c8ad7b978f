package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"
	"devstream/pkg/config"
	apperrors "devstream/pkg/errors"
	"devstream/pkg/logger"
	"devstream/pkg/tracing"
	"devstream/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errUnknownEvent = errors.New("Unknown event")

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	AllowedOrigins []string

	// MaxMessageSize caps inbound frames in bytes; 0 means unlimited.
	MaxMessageSize int64
	// MessagesPerSecond of 0 disables per-connection throttling.
	MessagesPerSecond float64
	MessageBurst      int
}

func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBuffer:     cfg.Signal.SendBuffer,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
	}
	if cfg.RateLimiting.Enabled {
		opts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		opts.MessageBurst = cfg.RateLimiting.WebSocket.Burst
	}
	return opts
}

type WebSocketServer struct {
	hub     *Hub
	auth    ports.IdentityResolver
	rooms   ports.RoomService
	chat    ports.ChatService
	metrics ports.MetricsRecorder

	opts     Options
	upgrader websocket.Upgrader

	// mu orders wg.Add against Shutdown's Wait.
	mu           sync.Mutex
	wg           sync.WaitGroup
	shuttingDown bool

	logger    *zap.SugaredLogger
	ctxLogger *logger.ContextLogger
}

func NewWebSocketServer(
	hub *Hub,
	auth ports.IdentityResolver,
	rooms ports.RoomService,
	chat ports.ChatService,
	metrics ports.MetricsRecorder,
	opts Options,
	log *zap.Logger,
) *WebSocketServer {
	return &WebSocketServer{
		hub:     hub,
		auth:    auth,
		rooms:   rooms,
		chat:    chat,
		metrics: metrics,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(opts.AllowedOrigins),
		},
		logger:    log.Sugar(),
		ctxLogger: logger.NewContextLogger(log),
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	id := domain.ConnectionID(uuid.NewString())
	persistentID := r.URL.Query().Get("persistentUserId")
	if err := validation.ValidatePersistentID(persistentID); err != nil {
		s.logger.Debugw("ignoring invalid persistent id", "connection_id", id, "error", err)
		persistentID = ""
	}
	identity := s.auth.Resolve(credential(r), persistentID, id)

	c := newClient(id, identity, conn, s.opts.SendBuffer, s.newLimiter())
	// userInfo is queued before registration so nothing can overtake it
	if msg, err := encode(domain.EventUserInfo, identity); err == nil {
		c.enqueue(msg)
	}
	s.metrics.ConnectionOpened()
	go c.writePump(s.opts.PingInterval, s.opts.WriteTimeout)

	ctx := logger.WithConnectionID(context.Background(), string(id))
	ctx = logger.WithUserID(ctx, identity.ID)

	s.ctxLogger.LogInfo(ctx, "client connected",
		zap.String("username", identity.Username),
		zap.String("role", string(identity.Role)),
	)

	// Registration happens inside Join so that no chat broadcast can reach
	// the connection ahead of its history.
	s.chat.Join(ctx, id, identity, func() { s.hub.register(c) })
	if s.isShuttingDown() {
		// Shutdown's closeAll may have run before the register above.
		c.close()
	}

	s.readPump(ctx, c)
	s.cleanup(ctx, c)
}

func (s *WebSocketServer) readPump(ctx context.Context, c *client) {
	if s.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Infow("connection closed unexpectedly", "connection_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.replyError(ctx, c, "", errMalformed)
			continue
		}
		if !c.allow() {
			s.replyError(ctx, c, env.Event, domain.ErrRateLimited)
			continue
		}
		s.dispatch(ctx, c, env)
	}
}

func (s *WebSocketServer) dispatch(ctx context.Context, c *client, env Envelope) {
	ctx, span := tracing.TraceSocketEvent(ctx, env.Event, string(c.id))
	defer span.End()

	if err := s.handle(ctx, c, env); err != nil {
		tracing.RecordError(ctx, err)
		s.replyError(ctx, c, env.Event, err)
	}
}

func (s *WebSocketServer) handle(ctx context.Context, c *client, env Envelope) error {
	switch env.Event {
	case domain.EventStartStream, domain.EventJoinStream, domain.EventLeaveStream, domain.EventStopStream:
		roomID, err := decodeRoomID(env.Data)
		if err != nil {
			return err
		}
		tracing.AddSpanAttributes(ctx, tracing.RoomIDKey.String(string(roomID)))
		ctx = logger.WithRoomID(ctx, string(roomID))

		switch env.Event {
		case domain.EventStartStream:
			return s.rooms.StartStream(ctx, c.id, roomID)
		case domain.EventJoinStream:
			return s.rooms.JoinStream(ctx, c.id, roomID)
		case domain.EventLeaveStream:
			return s.rooms.LeaveStream(ctx, c.id, roomID)
		default:
			return s.rooms.StopStream(ctx, c.id, roomID)
		}

	case domain.EventOffer:
		var p offerPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return s.rooms.Relay(ctx, c.id, domain.SignalOffer, p.RoomID, p.ViewerID, p.Offer)

	case domain.EventAnswer:
		var p answerPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return s.rooms.Relay(ctx, c.id, domain.SignalAnswer, p.RoomID, p.BroadcasterID, p.Answer)

	case domain.EventICECandidate:
		var p candidatePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return s.rooms.Relay(ctx, c.id, domain.SignalICECandidate, p.RoomID, p.TargetID, p.Candidate)

	case domain.EventChatMessage:
		text, err := decodeChat(env.Data)
		if err != nil {
			return err
		}
		_, err = s.chat.Post(ctx, c.id, text)
		return err

	case domain.EventModAction:
		var req domain.ModRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return s.chat.Moderate(ctx, c.id, req)

	default:
		return errUnknownEvent
	}
}

// replyError answers the offending connection only.
func (s *WebSocketServer) replyError(ctx context.Context, c *client, event string, err error) {
	appErr := toAppError(err)
	s.metrics.SocketError(string(appErr.Code))

	switch appErr.Code {
	case apperrors.ErrCodeInternal:
		s.ctxLogger.LogError(ctx, err, "socket event failed", zap.String("event", event))
	case apperrors.ErrCodeForbidden:
		s.ctxLogger.LogSecurity(ctx, "socket event rejected",
			zap.String("event", event),
			zap.String("reason", err.Error()),
		)
	default:
		s.ctxLogger.LogDebug(ctx, "socket event rejected",
			zap.String("event", event),
			zap.String("code", string(appErr.Code)),
			zap.Error(err),
		)
	}

	s.hub.SendTo(c.id, domain.EventError, domain.ErrorNotice{
		Message: appErr.Message,
		Event:   event,
		Code:    string(appErr.Code),
	})
}

// cleanup runs once per connection, however the connection ended.
func (s *WebSocketServer) cleanup(ctx context.Context, c *client) {
	c.cleanupOnce.Do(func() {
		s.hub.unregister(c.id)
		c.close()

		if err := s.rooms.HandleDisconnect(ctx, c.id); err != nil {
			s.ctxLogger.LogError(ctx, err, "room cleanup failed")
		}
		s.chat.Leave(ctx, c.id)
		s.metrics.ConnectionClosed()

		s.ctxLogger.LogInfo(ctx, "client disconnected")
	})
}

// Shutdown stops accepting connections, closes the open ones and waits for
// their cleanup to finish.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
	s.hub.closeAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track admits a new connection into the wait group unless Shutdown has
// started. The caller must call wg.Done when track returns true.
func (s *WebSocketServer) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *WebSocketServer) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *WebSocketServer) ConnectionCount() int {
	return s.hub.ConnectionCount()
}

func (s *WebSocketServer) newLimiter() *rate.Limiter {
	if s.opts.MessagesPerSecond <= 0 || s.opts.MessageBurst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
}

// credential reads the bearer token from the query string or the
// Authorization header.
func credential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
