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

// CartService manages a durable per-owner cart. Every mutation persists the
// full snapshot before returning, so a reload always observes the same cart
// the caller last saw.
type CartService interface {
	Get(ctx context.Context, key string) (domain.Cart, error)
	AddItem(ctx context.Context, key string, item domain.CartItem) (domain.Cart, error)
	RemoveItem(ctx context.Context, key, voucherID string) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, key, voucherID string, quantity int) (domain.Cart, error)
	Clear(ctx context.Context, key string) (domain.Cart, error)
	TotalPoints(ctx context.Context, key string) (int64, error)
}

// CartServiceDeps wires the dependencies required by NewCartService.
type CartServiceDeps struct {
	Store  repositories.CartSnapshotStore
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

var (
	// ErrCartInvalidInput indicates the caller supplied malformed cart input.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced line is absent from the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartUnavailable indicates the snapshot store could not be reached.
	ErrCartUnavailable = errors.New("cart: storage unavailable")

	errCartStoreRequired = errors.New("cart service: store dependency is required")
)

type cartService struct {
	store repositories.CartSnapshotStore
	now   func() time.Time
	log   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs the snapshot-backed cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Store == nil {
		return nil, errCartStoreRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &cartService{
		store: deps.Store,
		now:   func() time.Time { return clock().UTC() },
		log:   deps.Logger,
	}, nil
}

func (s *cartService) Get(ctx context.Context, key string) (domain.Cart, error) {
	if s == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart key is required", ErrCartInvalidInput)
	}
	return s.load(ctx, key)
}

func (s *cartService) AddItem(ctx context.Context, key string, item domain.CartItem) (domain.Cart, error) {
	if s == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart key is required", ErrCartInvalidInput)
	}
	item.VoucherID = strings.TrimSpace(item.VoucherID)
	item.Title = strings.TrimSpace(item.Title)
	if item.VoucherID == "" {
		return domain.Cart{}, fmt.Errorf("%w: voucher id is required", ErrCartInvalidInput)
	}
	if item.Points < 0 {
		return domain.Cart{}, fmt.Errorf("%w: points must not be negative", ErrCartInvalidInput)
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	cart, err := s.load(ctx, key)
	if err != nil {
		return domain.Cart{}, err
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].VoucherID == item.VoucherID {
			cart.Items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, item)
	}

	if err := s.save(ctx, &cart); err != nil {
		return domain.Cart{}, err
	}
	s.logEvent(ctx, "cart.item_added", map[string]any{
		"cart_key":   key,
		"voucher_id": item.VoucherID,
		"quantity":   item.Quantity,
		"merged":     merged,
	})
	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, key, voucherID string) (domain.Cart, error) {
	if s == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	key = strings.TrimSpace(key)
	voucherID = strings.TrimSpace(voucherID)
	if key == "" || voucherID == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart key and voucher id are required", ErrCartInvalidInput)
	}

	cart, err := s.load(ctx, key)
	if err != nil {
		return domain.Cart{}, err
	}

	found := false
	items := cart.Items[:0]
	for _, line := range cart.Items {
		if line.VoucherID == voucherID {
			found = true
			continue
		}
		items = append(items, line)
	}
	if !found {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, voucherID)
	}
	cart.Items = items

	if err := s.save(ctx, &cart); err != nil {
		return domain.Cart{}, err
	}
	s.logEvent(ctx, "cart.item_removed", map[string]any{
		"cart_key":   key,
		"voucher_id": voucherID,
	})
	return cart, nil
}

// UpdateQuantity sets the quantity of an existing line. A quantity of zero
// or less removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, key, voucherID string, quantity int) (domain.Cart, error) {
	if s == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, key, voucherID)
	}
	key = strings.TrimSpace(key)
	voucherID = strings.TrimSpace(voucherID)
	if key == "" || voucherID == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart key and voucher id are required", ErrCartInvalidInput)
	}

	cart, err := s.load(ctx, key)
	if err != nil {
		return domain.Cart{}, err
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].VoucherID == voucherID {
			cart.Items[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, voucherID)
	}

	if err := s.save(ctx, &cart); err != nil {
		return domain.Cart{}, err
	}
	s.logEvent(ctx, "cart.quantity_updated", map[string]any{
		"cart_key":   key,
		"voucher_id": voucherID,
		"quantity":   quantity,
	})
	return cart, nil
}

func (s *cartService) Clear(ctx context.Context, key string) (domain.Cart, error) {
	if s == nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart key is required", ErrCartInvalidInput)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return domain.Cart{}, s.translateStoreError(err)
	}
	s.logEvent(ctx, "cart.cleared", map[string]any{"cart_key": key})
	return domain.Cart{Key: key, UpdatedAt: s.now()}, nil
}

func (s *cartService) TotalPoints(ctx context.Context, key string) (int64, error) {
	cart, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return cart.TotalPoints(), nil
}

// load reads the snapshot, treating an absent key as an empty cart and a
// corrupt snapshot as empty after logging the discard.
func (s *cartService) load(ctx context.Context, key string) (domain.Cart, error) {
	cart, found, err := s.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, repositories.ErrCorruptSnapshot) {
			s.logEvent(ctx, "cart.snapshot_discarded", map[string]any{
				"cart_key": key,
				"reason":   err.Error(),
			})
			return domain.Cart{Key: key}, nil
		}
		return domain.Cart{}, s.translateStoreError(err)
	}
	if !found {
		return domain.Cart{Key: key}, nil
	}
	cart.Key = key
	s.dropInvalidLines(ctx, &cart)
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart *domain.Cart) error {
	cart.UpdatedAt = s.now()
	if err := s.store.Save(ctx, *cart); err != nil {
		return s.translateStoreError(err)
	}
	return nil
}

// dropInvalidLines removes lines a buggy or tampered snapshot may contain.
func (s *cartService) dropInvalidLines(ctx context.Context, cart *domain.Cart) {
	valid := cart.Items[:0]
	dropped := 0
	for _, line := range cart.Items {
		if strings.TrimSpace(line.VoucherID) == "" || line.Quantity < 1 || line.Points < 0 {
			dropped++
			continue
		}
		valid = append(valid, line)
	}
	cart.Items = valid
	if dropped > 0 {
		s.logEvent(ctx, "cart.snapshot_discarded", map[string]any{
			"cart_key": cart.Key,
			"dropped":  dropped,
			"reason":   "invalid lines",
		})
	}
}

func (s *cartService) translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func (s *cartService) logEvent(ctx context.Context, event string, fields map[string]any) {
	if s.log == nil {
		return
	}
	s.log(ctx, event, fields)
}
