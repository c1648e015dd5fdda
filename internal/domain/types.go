package domain

import (
	"time"
)

// SessionState enumerates the lifecycle states of a storefront session.
type SessionState string

const (
	// SessionAnonymous indicates no authenticated user is attached.
	SessionAnonymous SessionState = "anonymous"
	// SessionAuthenticated indicates a verified user without a loaded profile.
	SessionAuthenticated SessionState = "authenticated"
	// SessionProfileLoaded indicates a verified user with a loyalty profile.
	SessionProfileLoaded SessionState = "profile_loaded"
)

// User mirrors the identity provider's user record.
type User struct {
	ID        string
	Email     string
	FullName  string
	CreatedAt time.Time
}

// UserProfile is the loyalty profile row keyed by the identity user id.
type UserProfile struct {
	UserID    string
	Email     string
	FullName  string
	Points    int64
	Tier      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session bundles the authenticated user with the loaded profile, if any.
// Profile is nil while the session is authenticated but profile-less.
type Session struct {
	User    *User
	Profile *UserProfile
}

// State derives the session lifecycle state from the attached data.
func (s *Session) State() SessionState {
	switch {
	case s == nil || s.User == nil:
		return SessionAnonymous
	case s.Profile == nil:
		return SessionAuthenticated
	default:
		return SessionProfileLoaded
	}
}

// Authenticated reports whether a verified user is attached.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}

// Voucher is a read-only reward snapshot from the remote catalog.
type Voucher struct {
	ID          string
	Title       string
	Description string
	Category    string
	Points      int64
	ImageURL    string
	Active      bool
	CreatedAt   time.Time
}

// VoucherCategory groups vouchers for catalog filtering.
type VoucherCategory struct {
	ID     string
	Name   string
	Active bool
}

// CartItem is a single cart line. Quantity is always >= 1 for stored
// lines; Points is the per-unit cost captured at add time.
type CartItem struct {
	VoucherID string
	Title     string
	Points    int64
	Quantity  int
	ImageURL  string
}

// Cart is an ordered multiset of cart lines, at most one per voucher id.
type Cart struct {
	Key       string
	Items     []CartItem
	UpdatedAt time.Time
}

// TotalPoints is the redemption cost of the whole cart.
func (c Cart) TotalPoints() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Points * int64(item.Quantity)
	}
	return total
}

// ItemCount is the badge count: the sum of line quantities.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// RedemptionLine is one voucher position inside a redemption request.
type RedemptionLine struct {
	VoucherID  string
	Quantity   int
	PointsUsed int64
}

// Redemption describes a completed atomic points redemption.
type Redemption struct {
	Reference   string
	UserID      string
	Lines       []RedemptionLine
	TotalPoints int64
	CreatedAt   time.Time
}

// NotificationSeverity classifies transient user-facing notices.
type NotificationSeverity string

const (
	// SeveritySuccess marks a completed operation.
	SeveritySuccess NotificationSeverity = "success"
	// SeverityError marks a failed operation.
	SeverityError NotificationSeverity = "error"
	// SeverityWarning marks a recoverable precondition failure.
	SeverityWarning NotificationSeverity = "warning"
	// SeverityInfo marks neutral status updates.
	SeverityInfo NotificationSeverity = "info"
)

// Notification is a transient, auto-expiring user notice.
type Notification struct {
	ID        string
	Severity  NotificationSeverity
	Message   string
	Icon      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionEventKind enumerates published session transitions.
type SessionEventKind string

const (
	// SessionSignedIn is published after a session becomes authenticated.
	SessionSignedIn SessionEventKind = "signed_in"
	// SessionSignedOut is published after a session is torn down.
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent notifies subscribers of a session transition. The session
// mutation is always applied before the event is published.
type SessionEvent struct {
	Kind       SessionEventKind
	UserID     string
	CartKey    string
	OccurredAt time.Time
}
