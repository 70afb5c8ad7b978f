package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"
	"devstream/pkg/logger"
	"devstream/pkg/validation"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	moderationDenied  = "denied"
	moderationApplied = "applied"
	moderationFailed  = "failed"
)

type ChatConfig struct {
	MaxHistory     int
	DefaultTimeout time.Duration
	BanDuration    time.Duration
}

func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxHistory:     domain.DefaultMaxHistory,
		DefaultTimeout: 60 * time.Second,
		BanDuration:    24 * time.Hour,
	}
}

// chatService is the single shared chat channel. Appending to history and
// broadcasting happen under mu, which gives every client the same order.
type chatService struct {
	mu      sync.Mutex
	members map[domain.ConnectionID]domain.Identity
	history []domain.ChatMessage

	entropy *ulid.MonotonicEntropy
	lastMs  uint64

	cfg          ChatConfig
	suppressions ports.SuppressionRepository
	notifier     ports.Notifier
	metrics      ports.MetricsRecorder
	logger       *logger.ContextLogger
	now          func() time.Time
}

func NewChatService(
	cfg ChatConfig,
	suppressions ports.SuppressionRepository,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	log *logger.ContextLogger,
) ports.ChatService {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = domain.DefaultMaxHistory
	}
	return &chatService{
		members:      make(map[domain.ConnectionID]domain.Identity),
		history:      make([]domain.ChatMessage, 0, cfg.MaxHistory),
		entropy:      ulid.Monotonic(rand.Reader, 0),
		cfg:          cfg,
		suppressions: suppressions,
		notifier:     notifier,
		metrics:      metrics,
		logger:       log,
		now:          time.Now,
	}
}

// Join registers the identity, sends it the current history and announces
// it to everyone else. The history goes out before the announcement so the
// joiner never sees its own join message ahead of the backlog.
func (s *chatService) Join(ctx context.Context, conn domain.ConnectionID, identity domain.Identity, attach func()) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attach != nil {
		attach()
	}
	s.members[conn] = identity
	snapshot := s.snapshot()
	s.notifier.SendTo(conn, domain.EventChatHistory, snapshot)

	if !identity.IsBot() {
		s.publishPresence(identity, domain.PresenceJoin)
	}
	return snapshot
}

func (s *chatService) Post(ctx context.Context, conn domain.ConnectionID, text string) (*domain.ChatMessage, error) {
	message, err := validation.ChatText(text, domain.MaxMessageLength)
	switch {
	case errors.Is(err, validation.ErrEmpty):
		return nil, domain.ErrEmptyMessage
	case errors.Is(err, validation.ErrTooLong):
		return nil, domain.ErrMessageTooLong
	case err != nil:
		return nil, err
	}

	s.mu.Lock()
	identity, ok := s.members[conn]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	if s.suppressed(ctx, identity) {
		return nil, domain.ErrSuppressed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.ChatMessage{
		ID:           s.nextID(),
		Username:     identity.Username,
		Message:      message,
		Role:         identity.Role,
		Timestamp:    s.now().UTC(),
		Type:         domain.MessageTypeUser,
		UserID:       identity.ID,
		PersistentID: identity.PersistentID,
	}
	s.history = append(s.history, msg)
	if len(s.history) > s.cfg.MaxHistory {
		s.trimTo(s.cfg.MaxHistory)
	}

	s.notifier.Broadcast(domain.EventChatMessage, msg)
	s.metrics.ChatMessageAccepted(domain.MessageTypeUser)
	return &msg, nil
}

func (s *chatService) Moderate(ctx context.Context, conn domain.ConnectionID, req domain.ModRequest) error {
	s.mu.Lock()
	actor, ok := s.members[conn]
	s.mu.Unlock()
	if !ok {
		return domain.ErrUserNotFound
	}

	ctx = logger.WithConnectionID(ctx, string(conn))
	ctx = logger.WithUserID(ctx, actor.ID)

	if !actor.Role.AtLeast(domain.RoleModerator) {
		s.logger.LogSecurity(ctx, "moderation denied",
			zap.String("role", string(actor.Role)),
			zap.String("action", string(req.Action)),
			zap.String("target", req.TargetUsername),
		)
		s.metrics.ModerationAction(req.Action, moderationDenied)
		return domain.ErrInsufficientPermissions
	}

	var err error
	switch req.Action {
	case domain.ModActionDelete:
		err = s.deleteMessage(req)
	case domain.ModActionTimeout:
		err = s.timeout(ctx, req)
	case domain.ModActionBan:
		err = s.ban(ctx, req)
	default:
		err = domain.ErrUnknownModAction
	}

	if err != nil {
		s.metrics.ModerationAction(req.Action, moderationFailed)
		return err
	}

	s.metrics.ModerationAction(req.Action, moderationApplied)
	s.logger.LogInfo(ctx, "moderation applied",
		zap.String("action", string(req.Action)),
		zap.String("target", req.TargetUsername),
		zap.String("reason", req.Reason),
	)
	return nil
}

func (s *chatService) Leave(ctx context.Context, conn domain.ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.members[conn]
	if !ok {
		return
	}
	delete(s.members, conn)

	if !identity.IsBot() {
		s.publishPresence(identity, domain.PresenceLeave)
	}
}

func (s *chatService) History() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *chatService) deleteMessage(req domain.ModRequest) error {
	if req.MessageID == "" {
		return domain.ErrMissingMessageID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier.Broadcast(domain.EventDeleteMessage, domain.DeleteNotice{MessageID: req.MessageID})
	return nil
}

func (s *chatService) timeout(ctx context.Context, req domain.ModRequest) error {
	targets, err := s.targets(req.TargetUsername)
	if err != nil {
		return err
	}

	duration := s.cfg.DefaultTimeout
	if req.Duration > 0 {
		duration = time.Duration(req.Duration) * time.Second
	}
	s.suppress(ctx, targets, domain.SuppressionTimeout, req.Reason, duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	notice := domain.TimeoutNotice{Duration: int(duration / time.Second), Reason: req.Reason}
	for conn := range targets {
		s.notifier.SendTo(conn, domain.EventTimeout, notice)
	}
	s.announce(moderationNotice(req.TargetUsername, "has been timed out", req.Reason))
	return nil
}

func (s *chatService) ban(ctx context.Context, req domain.ModRequest) error {
	targets, err := s.targets(req.TargetUsername)
	if err != nil {
		return err
	}

	s.suppress(ctx, targets, domain.SuppressionBan, req.Reason, s.cfg.BanDuration)

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range targets {
		s.notifier.SendTo(conn, domain.EventBanned, domain.BanNotice{Reason: req.Reason})
	}
	s.announce(moderationNotice(req.TargetUsername, "has been banned", req.Reason))
	for conn := range targets {
		s.notifier.Disconnect(conn)
	}
	return nil
}

// targets returns every connection currently using username.
func (s *chatService) targets(username string) (map[domain.ConnectionID]domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := make(map[domain.ConnectionID]domain.Identity)
	for conn, identity := range s.members {
		if username != "" && identity.Username == username {
			found[conn] = identity
		}
	}
	if len(found) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return found, nil
}

func (s *chatService) suppress(
	ctx context.Context,
	targets map[domain.ConnectionID]domain.Identity,
	kind domain.SuppressionKind,
	reason string,
	duration time.Duration,
) {
	until := s.now().Add(duration)
	seen := make(map[string]bool, len(targets))
	for _, identity := range targets {
		if seen[identity.PersistentID] {
			continue
		}
		seen[identity.PersistentID] = true

		err := s.suppressions.Put(ctx, &domain.Suppression{
			PersistentID: identity.PersistentID,
			Kind:         kind,
			Reason:       reason,
			Until:        until,
		})
		if err != nil {
			s.logger.LogError(ctx, err, "failed to store suppression",
				zap.String("persistent_id", identity.PersistentID),
				zap.String("kind", string(kind)),
			)
		}
	}
}

// suppressed fails open: a store outage must not silence the whole chat.
func (s *chatService) suppressed(ctx context.Context, identity domain.Identity) bool {
	suppression, err := s.suppressions.Get(ctx, identity.PersistentID)
	if errors.Is(err, domain.ErrSuppressionNotFound) {
		return false
	}
	if err != nil {
		s.logger.LogError(ctx, err, "failed to read suppression",
			zap.String("persistent_id", identity.PersistentID),
		)
		return false
	}
	return suppression.Active(s.now())
}

// publishPresence must be called with mu held.
func (s *chatService) publishPresence(identity domain.Identity, kind domain.PresenceKind) {
	text := identity.Username + " joined the chat"
	if kind == domain.PresenceLeave {
		text = identity.Username + " left the chat"
	}

	msg := s.systemMessage(text)
	s.history = append(s.history, msg)
	if len(s.history) > 2*s.cfg.MaxHistory {
		s.trimTo(s.cfg.MaxHistory)
	}

	s.notifier.Broadcast(domain.EventChatMessage, msg)
	s.metrics.ChatMessageAccepted(domain.MessageTypeSystem)
}

// announce broadcasts a system notice without storing it. Must be called
// with mu held.
func (s *chatService) announce(text string) {
	s.notifier.Broadcast(domain.EventChatMessage, s.systemMessage(text))
}

func (s *chatService) systemMessage(text string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        s.nextID(),
		Username:  domain.SystemUsername,
		Message:   text,
		Role:      domain.RoleBot,
		Timestamp: s.now().UTC(),
		Type:      domain.MessageTypeSystem,
	}
}

// nextID must be called with mu held. The timestamp never moves backwards,
// so ids stay strictly increasing even if the wall clock does.
func (s *chatService) nextID() string {
	ms := ulid.Timestamp(s.now())
	if ms < s.lastMs {
		ms = s.lastMs
	}
	for {
		id, err := ulid.New(ms, s.entropy)
		if err == nil {
			s.lastMs = ms
			return id.String()
		}
		// entropy exhausted within this millisecond
		ms++
	}
}

func (s *chatService) trimTo(n int) {
	drop := len(s.history) - n
	if drop <= 0 {
		return
	}
	kept := make([]domain.ChatMessage, n, s.cfg.MaxHistory)
	copy(kept, s.history[drop:])
	s.history = kept
}

func (s *chatService) snapshot() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

func moderationNotice(username, verb, reason string) string {
	if reason == "" {
		return fmt.Sprintf("%s %s", username, verb)
	}
	return fmt.Sprintf("%s %s: %s", username, verb, reason)
}
