package repositories

import (
	"context"
	"errors"

	domain "github.com/optima-bank/loyalty/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProfileRepository persists loyalty profile rows in the remote store.
type ProfileRepository interface {
	FindByUserID(ctx context.Context, userID string) (domain.UserProfile, error)
	Insert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// VoucherFilter narrows voucher listings. A nil Category means all
// categories; Search matches title substrings case-insensitively.
type VoucherFilter struct {
	Category *string
	Search   string
}

// VoucherRepository reads the remote voucher catalog.
type VoucherRepository interface {
	List(ctx context.Context, filter VoucherFilter) ([]domain.Voucher, error)
	FindByID(ctx context.Context, voucherID string) (domain.Voucher, error)
}

// CategoryRepository reads the remote voucher category list.
type CategoryRepository interface {
	ListActive(ctx context.Context) ([]domain.VoucherCategory, error)
}

// RedemptionRequest is the payload handed to the remote atomic redemption call.
type RedemptionRequest struct {
	UserID      string
	Lines       []domain.RedemptionLine
	TotalPoints int64
}

// RedemptionResult reports the outcome of the remote redemption call.
type RedemptionResult struct {
	Reference       string
	RemainingPoints int64
	// RemainingKnown reports whether the procedure returned a confirmed
	// balance; a zero RemainingPoints is only meaningful when it did.
	RemainingKnown bool
}

// RedemptionRepository invokes the remote transactional redemption procedure.
type RedemptionRepository interface {
	Redeem(ctx context.Context, req RedemptionRequest) (RedemptionResult, error)
}

// ErrCorruptSnapshot indicates a stored cart payload could not be decoded.
// Services treat a corrupt snapshot as an empty cart after logging it.
var ErrCorruptSnapshot = errors.New("cart store: corrupt snapshot")

// CartSnapshotStore persists full cart snapshots keyed by cart owner. Load
// reports found=false for absent keys without error.
type CartSnapshotStore interface {
	Load(ctx context.Context, key string) (domain.Cart, bool, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, key string) error
}

// HealthRepository verifies downstream connectivity for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) error
}
