package services

import (
	domain "github.com/optima-bank/loyalty/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Session              = domain.Session
	SessionState         = domain.SessionState
	SessionEvent         = domain.SessionEvent
	SessionEventKind     = domain.SessionEventKind
	User                 = domain.User
	UserProfile          = domain.UserProfile
	Voucher              = domain.Voucher
	VoucherCategory      = domain.VoucherCategory
	Cart                 = domain.Cart
	CartItem             = domain.CartItem
	Redemption           = domain.Redemption
	RedemptionLine       = domain.RedemptionLine
	Notification         = domain.Notification
	NotificationSeverity = domain.NotificationSeverity
)
