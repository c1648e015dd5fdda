package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
)

type stubRedemptionRepository struct {
	redeemFn func(ctx context.Context, req repositories.RedemptionRequest) (repositories.RedemptionResult, error)
	calls    int
	lastReq  repositories.RedemptionRequest
}

func (s *stubRedemptionRepository) Redeem(ctx context.Context, req repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
	s.calls++
	s.lastReq = req
	if s.redeemFn == nil {
		return repositories.RedemptionResult{}, errors.New("unexpected Redeem call")
	}
	return s.redeemFn(ctx, req)
}

type redemptionTestEnv struct {
	repo     *stubRedemptionRepository
	store    *memSnapshotStore
	notifier Notifier
	svc      RedemptionService
}

func newRedemptionTestEnv(t *testing.T, repo *stubRedemptionRepository) *redemptionTestEnv {
	t.Helper()
	store := newMemSnapshotStore()
	carts, err := NewCartService(CartServiceDeps{Store: store})
	if err != nil {
		t.Fatalf("NewCartService returned error: %v", err)
	}
	notifier, err := NewNotifier(NotifierDeps{TTL: 4 * time.Second})
	if err != nil {
		t.Fatalf("NewNotifier returned error: %v", err)
	}
	svc, err := NewRedemptionService(RedemptionServiceDeps{
		Redemptions: repo,
		Carts:       carts,
		Notifier:    notifier,
	})
	if err != nil {
		t.Fatalf("NewRedemptionService returned error: %v", err)
	}
	return &redemptionTestEnv{repo: repo, store: store, notifier: notifier, svc: svc}
}

func profileLoadedSession(points int64) domain.Session {
	return domain.Session{
		User:    &domain.User{ID: "user-1", Email: "jo@example.com"},
		Profile: &domain.UserProfile{UserID: "user-1", Points: points, Tier: "Silver"},
	}
}

func TestRedemptionServiceRedeemHappyPath(t *testing.T) {
	repo := &stubRedemptionRepository{
		redeemFn: func(_ context.Context, req repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
			return repositories.RedemptionResult{Reference: "red-1", RemainingPoints: 100, RemainingKnown: true}, nil
		},
	}
	env := newRedemptionTestEnv(t, repo)
	env.store.carts["user-1"] = domain.Cart{
		Key: "user-1",
		Items: []domain.CartItem{
			{VoucherID: "v-1", Points: 100, Quantity: 2},
			{VoucherID: "v-2", Points: 200, Quantity: 1},
		},
	}

	outcome, err := env.svc.Redeem(context.Background(), profileLoadedSession(500), "user-1")
	if err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}
	if outcome.RemainingPoints != 100 {
		t.Fatalf("expected remaining 100, got %d", outcome.RemainingPoints)
	}
	if outcome.Redemption.TotalPoints != 400 {
		t.Fatalf("expected total 400, got %d", outcome.Redemption.TotalPoints)
	}
	if outcome.Redemption.Reference != "red-1" {
		t.Fatalf("expected remote reference, got %q", outcome.Redemption.Reference)
	}
	if repo.lastReq.UserID != "user-1" || repo.lastReq.TotalPoints != 400 {
		t.Fatalf("unexpected remote request: %+v", repo.lastReq)
	}
	if len(repo.lastReq.Lines) != 2 || repo.lastReq.Lines[0].PointsUsed != 200 {
		t.Fatalf("expected per-line points_used, got %+v", repo.lastReq.Lines)
	}
	if _, found := env.store.carts["user-1"]; found {
		t.Fatalf("expected cart cleared after redemption")
	}
}

func TestRedemptionServiceInsufficientPointsSkipsRemoteCall(t *testing.T) {
	repo := &stubRedemptionRepository{}
	env := newRedemptionTestEnv(t, repo)
	env.store.carts["user-1"] = domain.Cart{
		Key:   "user-1",
		Items: []domain.CartItem{{VoucherID: "v-1", Points: 400, Quantity: 1}},
	}

	_, err := env.svc.Redeem(context.Background(), profileLoadedSession(300), "user-1")
	if !errors.Is(err, ErrRedemptionInsufficientPoints) {
		t.Fatalf("expected ErrRedemptionInsufficientPoints, got %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("expected no remote call on failed precondition, got %d", repo.calls)
	}
	if _, found := env.store.carts["user-1"]; !found {
		t.Fatalf("expected cart untouched after failed precondition")
	}
}

func TestRedemptionServiceEmptyCart(t *testing.T) {
	repo := &stubRedemptionRepository{}
	env := newRedemptionTestEnv(t, repo)

	_, err := env.svc.Redeem(context.Background(), profileLoadedSession(1000), "user-1")
	if !errors.Is(err, ErrRedemptionEmptyCart) {
		t.Fatalf("expected ErrRedemptionEmptyCart, got %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("expected no remote call for empty cart, got %d", repo.calls)
	}

	recent := env.notifier.Recent(context.Background())
	if len(recent) != 1 || recent[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected a warning notification for the empty cart, got %+v", recent)
	}
	if recent[0].Message != "Your cart is empty" {
		t.Fatalf("unexpected notification message %q", recent[0].Message)
	}
}

func TestRedemptionServiceRequiresProfileLoadedSession(t *testing.T) {
	env := newRedemptionTestEnv(t, &stubRedemptionRepository{})

	_, err := env.svc.Redeem(context.Background(), domain.Session{}, "user-1")
	if !errors.Is(err, ErrRedemptionUnauthenticated) {
		t.Fatalf("expected ErrRedemptionUnauthenticated for anonymous session, got %v", err)
	}

	authenticatedOnly := domain.Session{User: &domain.User{ID: "user-1"}}
	if _, err := env.svc.Redeem(context.Background(), authenticatedOnly, "user-1"); !errors.Is(err, ErrRedemptionUnauthenticated) {
		t.Fatalf("expected ErrRedemptionUnauthenticated without profile, got %v", err)
	}

	recent := env.notifier.Recent(context.Background())
	if len(recent) != 2 {
		t.Fatalf("expected a notification per rejected attempt, got %+v", recent)
	}
	for _, notice := range recent {
		if notice.Severity != domain.SeverityError || notice.Message != "Please sign in to redeem vouchers" {
			t.Fatalf("unexpected notification: %+v", notice)
		}
	}
}

func TestRedemptionServiceRemoteRejection(t *testing.T) {
	repo := &stubRedemptionRepository{
		redeemFn: func(context.Context, repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
			return repositories.RedemptionResult{}, &categorizedRepoError{conflict: true}
		},
	}
	env := newRedemptionTestEnv(t, repo)
	env.store.carts["user-1"] = domain.Cart{
		Key:   "user-1",
		Items: []domain.CartItem{{VoucherID: "v-1", Points: 100, Quantity: 1}},
	}

	_, err := env.svc.Redeem(context.Background(), profileLoadedSession(500), "user-1")
	if !errors.Is(err, ErrRedemptionRejected) {
		t.Fatalf("expected ErrRedemptionRejected, got %v", err)
	}
	if _, found := env.store.carts["user-1"]; !found {
		t.Fatalf("expected cart preserved after remote rejection")
	}
}

func TestRedemptionServiceRemoteFailure(t *testing.T) {
	repo := &stubRedemptionRepository{
		redeemFn: func(context.Context, repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
			return repositories.RedemptionResult{}, &categorizedRepoError{unavailable: true}
		},
	}
	env := newRedemptionTestEnv(t, repo)
	env.store.carts["user-1"] = domain.Cart{
		Key:   "user-1",
		Items: []domain.CartItem{{VoucherID: "v-1", Points: 100, Quantity: 1}},
	}

	_, err := env.svc.Redeem(context.Background(), profileLoadedSession(500), "user-1")
	if !errors.Is(err, ErrRedemptionUnavailable) {
		t.Fatalf("expected ErrRedemptionUnavailable, got %v", err)
	}
}

func TestRedemptionServiceDefaultsCartKeyToUser(t *testing.T) {
	repo := &stubRedemptionRepository{
		redeemFn: func(context.Context, repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
			return repositories.RedemptionResult{Reference: "red-2", RemainingPoints: 400, RemainingKnown: true}, nil
		},
	}
	env := newRedemptionTestEnv(t, repo)
	env.store.carts["user-1"] = domain.Cart{
		Key:   "user-1",
		Items: []domain.CartItem{{VoucherID: "v-1", Points: 100, Quantity: 1}},
	}

	outcome, err := env.svc.Redeem(context.Background(), profileLoadedSession(500), "")
	if err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}
	if outcome.RemainingPoints != 400 {
		t.Fatalf("expected remaining 400, got %d", outcome.RemainingPoints)
	}
}

func TestRedemptionServiceComputesRemainingWhenRemoteOmitsIt(t *testing.T) {
	repo := &stubRedemptionRepository{
		redeemFn: func(context.Context, repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
			return repositories.RedemptionResult{Reference: "red-3"}, nil
		},
	}
	env := newRedemptionTestEnv(t, repo)
	env.store.carts["user-1"] = domain.Cart{
		Key:   "user-1",
		Items: []domain.CartItem{{VoucherID: "v-1", Points: 400, Quantity: 1}},
	}

	outcome, err := env.svc.Redeem(context.Background(), profileLoadedSession(500), "user-1")
	if err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}
	if outcome.RemainingPoints != 100 {
		t.Fatalf("expected locally computed remaining 100, got %d", outcome.RemainingPoints)
	}
}

func TestRedemptionServiceTrustsConfirmedZeroBalance(t *testing.T) {
	repo := &stubRedemptionRepository{
		redeemFn: func(context.Context, repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
			return repositories.RedemptionResult{Reference: "red-4", RemainingPoints: 0, RemainingKnown: true}, nil
		},
	}
	env := newRedemptionTestEnv(t, repo)
	env.store.carts["user-1"] = domain.Cart{
		Key:   "user-1",
		Items: []domain.CartItem{{VoucherID: "v-1", Points: 400, Quantity: 1}},
	}

	outcome, err := env.svc.Redeem(context.Background(), profileLoadedSession(500), "user-1")
	if err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}
	if outcome.RemainingPoints != 0 {
		t.Fatalf("expected confirmed zero balance, got %d", outcome.RemainingPoints)
	}
}
