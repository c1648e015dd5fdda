package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/optima-bank/loyalty/internal/domain"
)

// Notifier publishes transient user-facing notices and fans them out to
// subscribers. Notices expire after a fixed interval and are dropped from
// Recent once expired.
type Notifier interface {
	Publish(ctx context.Context, severity domain.NotificationSeverity, message string) domain.Notification
	Dismiss(ctx context.Context, notificationID string) bool
	Recent(ctx context.Context) []domain.Notification
	Subscribe(ctx context.Context) (<-chan domain.Notification, func())
}

// NotifierDeps configures NewNotifier.
type NotifierDeps struct {
	TTL         time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

var errNotifierTTLInvalid = errors.New("notifier: ttl must be positive")

const subscriberBuffer = 8

type notifier struct {
	ttl   time.Duration
	now   func() time.Time
	newID func() string
	log   func(ctx context.Context, event string, fields map[string]any)

	mu          sync.Mutex
	items       []domain.Notification
	subscribers map[int]chan domain.Notification
	nextSub     int
}

// NewNotifier constructs the notification hub.
func NewNotifier(deps NotifierDeps) (Notifier, error) {
	if deps.TTL <= 0 {
		return nil, errNotifierTTLInvalid
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &notifier{
		ttl:         deps.TTL,
		now:         func() time.Time { return clock().UTC() },
		newID:       newID,
		log:         deps.Logger,
		subscribers: make(map[int]chan domain.Notification),
	}, nil
}

func (n *notifier) Publish(ctx context.Context, severity domain.NotificationSeverity, message string) domain.Notification {
	now := n.now()
	notification := domain.Notification{
		ID:        n.newID(),
		Severity:  severity,
		Message:   strings.TrimSpace(message),
		Icon:      iconForSeverity(severity),
		CreatedAt: now,
		ExpiresAt: now.Add(n.ttl),
	}

	n.mu.Lock()
	n.prune(now)
	n.items = append(n.items, notification)
	channels := make([]chan domain.Notification, 0, len(n.subscribers))
	for _, ch := range n.subscribers {
		channels = append(channels, ch)
	}
	n.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- notification:
		default:
			// Slow subscribers miss notices rather than blocking publishers.
		}
	}

	n.logEvent(ctx, "notification.published", map[string]any{
		"notification_id": notification.ID,
		"severity":        string(severity),
	})
	return notification
}

func (n *notifier) Dismiss(ctx context.Context, notificationID string) bool {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, item := range n.items {
		if item.ID == notificationID {
			n.items = append(n.items[:i], n.items[i+1:]...)
			return true
		}
	}
	return false
}

// Recent returns live notices newest first.
func (n *notifier) Recent(_ context.Context) []domain.Notification {
	now := n.now()

	n.mu.Lock()
	n.prune(now)
	out := make([]domain.Notification, len(n.items))
	copy(out, n.items)
	n.mu.Unlock()

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (n *notifier) Subscribe(_ context.Context) (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, subscriberBuffer)

	n.mu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subscribers[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

// prune drops expired notices. Callers must hold n.mu.
func (n *notifier) prune(now time.Time) {
	live := n.items[:0]
	for _, item := range n.items {
		if item.ExpiresAt.After(now) {
			live = append(live, item)
		}
	}
	n.items = live
}

func (n *notifier) logEvent(ctx context.Context, event string, fields map[string]any) {
	if n.log == nil {
		return
	}
	n.log(ctx, event, fields)
}

func iconForSeverity(severity domain.NotificationSeverity) string {
	switch severity {
	case domain.SeveritySuccess:
		return "check-circle"
	case domain.SeverityError:
		return "x-circle"
	case domain.SeverityWarning:
		return "alert-triangle"
	default:
		return "info"
	}
}
