package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
)

// RedemptionOutcome reports a completed redemption. RemainingPoints is the
// post-redemption balance as confirmed by the remote procedure.
type RedemptionOutcome struct {
	Redemption      domain.Redemption
	RemainingPoints int64
}

// RedemptionService exchanges cart contents for points through the remote
// atomic redemption procedure. All preconditions are checked locally before
// the remote call is made; a failed precondition never reaches the wire.
type RedemptionService interface {
	Redeem(ctx context.Context, session domain.Session, cartKey string) (RedemptionOutcome, error)
}

// RedemptionServiceDeps wires the dependencies required by NewRedemptionService.
type RedemptionServiceDeps struct {
	Redemptions repositories.RedemptionRepository
	Carts       CartService
	Notifier    Notifier
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

var (
	// ErrRedemptionUnauthenticated indicates no profile-loaded session is attached.
	ErrRedemptionUnauthenticated = errors.New("redemption: unauthenticated")
	// ErrRedemptionEmptyCart indicates the cart holds no lines.
	ErrRedemptionEmptyCart = errors.New("redemption: cart is empty")
	// ErrRedemptionInsufficientPoints indicates the balance cannot cover the cart.
	ErrRedemptionInsufficientPoints = errors.New("redemption: insufficient points")
	// ErrRedemptionRejected indicates the remote procedure refused the request.
	ErrRedemptionRejected = errors.New("redemption: rejected")
	// ErrRedemptionUnavailable indicates the remote procedure could not be reached.
	ErrRedemptionUnavailable = errors.New("redemption: unavailable")

	errRedemptionRepoRequired     = errors.New("redemption service: redemptions dependency is required")
	errRedemptionCartsRequired    = errors.New("redemption service: carts dependency is required")
	errRedemptionNotifierRequired = errors.New("redemption service: notifier dependency is required")
)

type redemptionService struct {
	redemptions repositories.RedemptionRepository
	carts       CartService
	notifier    Notifier
	now         func() time.Time
	log         func(ctx context.Context, event string, fields map[string]any)
}

// NewRedemptionService constructs the checkout service.
func NewRedemptionService(deps RedemptionServiceDeps) (RedemptionService, error) {
	if deps.Redemptions == nil {
		return nil, errRedemptionRepoRequired
	}
	if deps.Carts == nil {
		return nil, errRedemptionCartsRequired
	}
	if deps.Notifier == nil {
		return nil, errRedemptionNotifierRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &redemptionService{
		redemptions: deps.Redemptions,
		carts:       deps.Carts,
		notifier:    deps.Notifier,
		now:         func() time.Time { return clock().UTC() },
		log:         deps.Logger,
	}, nil
}

func (s *redemptionService) Redeem(ctx context.Context, session domain.Session, cartKey string) (RedemptionOutcome, error) {
	if s == nil {
		return RedemptionOutcome{}, ErrRedemptionUnavailable
	}
	if session.State() != domain.SessionProfileLoaded {
		s.notifier.Publish(ctx, domain.SeverityError, "Please sign in to redeem vouchers")
		return RedemptionOutcome{}, ErrRedemptionUnauthenticated
	}
	cartKey = strings.TrimSpace(cartKey)
	if cartKey == "" {
		cartKey = session.User.ID
	}

	cart, err := s.carts.Get(ctx, cartKey)
	if err != nil {
		return RedemptionOutcome{}, fmt.Errorf("%w: %v", ErrRedemptionUnavailable, err)
	}
	if len(cart.Items) == 0 {
		s.notifier.Publish(ctx, domain.SeverityWarning, "Your cart is empty")
		return RedemptionOutcome{}, ErrRedemptionEmptyCart
	}

	total := cart.TotalPoints()
	if total > session.Profile.Points {
		s.notifier.Publish(ctx, domain.SeverityWarning, "Not enough points for this redemption")
		s.logEvent(ctx, "redemption.insufficient_points", map[string]any{
			"user_id":  session.User.ID,
			"required": total,
			"balance":  session.Profile.Points,
		})
		return RedemptionOutcome{}, fmt.Errorf("%w: need %d, have %d", ErrRedemptionInsufficientPoints, total, session.Profile.Points)
	}

	lines := make([]domain.RedemptionLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, domain.RedemptionLine{
			VoucherID:  item.VoucherID,
			Quantity:   item.Quantity,
			PointsUsed: item.Points * int64(item.Quantity),
		})
	}

	result, err := s.redemptions.Redeem(ctx, repositories.RedemptionRequest{
		UserID:      session.User.ID,
		Lines:       lines,
		TotalPoints: total,
	})
	if err != nil {
		translated := s.translateRepoError(err)
		if errors.Is(translated, ErrRedemptionRejected) {
			s.notifier.Publish(ctx, domain.SeverityError, "Redemption was declined")
		} else if !errors.Is(translated, context.Canceled) && !errors.Is(translated, context.DeadlineExceeded) {
			s.notifier.Publish(ctx, domain.SeverityError, "Redemption failed, please try again")
		}
		return RedemptionOutcome{}, translated
	}

	if _, err := s.carts.Clear(ctx, cartKey); err != nil {
		// The redemption is committed remotely; a stale local snapshot is
		// recoverable, so log and continue.
		s.logEvent(ctx, "redemption.cart_clear_failed", map[string]any{
			"cart_key": cartKey,
			"error":    err.Error(),
		})
	}

	s.notifier.Publish(ctx, domain.SeveritySuccess, "Vouchers redeemed successfully")
	s.logEvent(ctx, "redemption.completed", map[string]any{
		"user_id":      session.User.ID,
		"reference":    result.Reference,
		"total_points": total,
	})

	// Older deployments of the procedure omit the confirmed balance; fall
	// back to the locally computed one.
	remaining := session.Profile.Points - total
	if result.RemainingKnown {
		remaining = result.RemainingPoints
	}

	return RedemptionOutcome{
		Redemption: domain.Redemption{
			Reference:   result.Reference,
			UserID:      session.User.ID,
			Lines:       lines,
			TotalPoints: total,
			CreatedAt:   s.now(),
		},
		RemainingPoints: remaining,
	}, nil
}

func (s *redemptionService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: %v", ErrRedemptionRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrRedemptionUnavailable, err)
}

func (s *redemptionService) logEvent(ctx context.Context, event string, fields map[string]any) {
	if s.log == nil {
		return
	}
	s.log(ctx, event, fields)
}
