package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
)

// CatalogService reads the remote voucher catalog. Listing distinguishes an
// empty result from a failed fetch so callers can render the right state.
type CatalogService interface {
	ListVouchers(ctx context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error)
	GetVoucher(ctx context.Context, voucherID string) (domain.Voucher, error)
	ListCategories(ctx context.Context) ([]domain.VoucherCategory, error)
}

// CatalogServiceDeps wires the dependencies required by NewCatalogService.
type CatalogServiceDeps struct {
	Vouchers   repositories.VoucherRepository
	Categories repositories.CategoryRepository
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

var (
	// ErrCatalogInvalidInput indicates the caller supplied malformed catalog input.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogVoucherNotFound indicates the voucher is absent or inactive.
	ErrCatalogVoucherNotFound = errors.New("catalog: voucher not found")
	// ErrCatalogUnavailable indicates the remote catalog could not be fetched.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")

	errCatalogVouchersRequired   = errors.New("catalog service: vouchers dependency is required")
	errCatalogCategoriesRequired = errors.New("catalog service: categories dependency is required")
)

type catalogService struct {
	vouchers   repositories.VoucherRepository
	categories repositories.CategoryRepository
	sanitizer  *bluemonday.Policy
	log        func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs the catalog read service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Vouchers == nil {
		return nil, errCatalogVouchersRequired
	}
	if deps.Categories == nil {
		return nil, errCatalogCategoriesRequired
	}
	return &catalogService{
		vouchers:   deps.Vouchers,
		categories: deps.Categories,
		sanitizer:  bluemonday.StrictPolicy(),
		log:        deps.Logger,
	}, nil
}

// ListVouchers returns the active vouchers matching the filter. An empty
// slice with a nil error means the catalog answered and nothing matched.
func (s *catalogService) ListVouchers(ctx context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error) {
	if s == nil {
		return nil, ErrCatalogUnavailable
	}
	if filter.Category != nil {
		category := strings.TrimSpace(*filter.Category)
		if category == "" {
			filter.Category = nil
		} else {
			filter.Category = &category
		}
	}
	filter.Search = strings.TrimSpace(filter.Search)

	vouchers, err := s.vouchers.List(ctx, filter)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	for i := range vouchers {
		s.sanitizeVoucher(&vouchers[i])
	}
	s.logEvent(ctx, "catalog.vouchers_listed", map[string]any{
		"count":    len(vouchers),
		"filtered": filter.Category != nil || filter.Search != "",
	})
	return vouchers, nil
}

func (s *catalogService) GetVoucher(ctx context.Context, voucherID string) (domain.Voucher, error) {
	if s == nil {
		return domain.Voucher{}, ErrCatalogUnavailable
	}
	voucherID = strings.TrimSpace(voucherID)
	if voucherID == "" {
		return domain.Voucher{}, fmt.Errorf("%w: voucher id is required", ErrCatalogInvalidInput)
	}

	voucher, err := s.vouchers.FindByID(ctx, voucherID)
	if err != nil {
		return domain.Voucher{}, s.translateRepoError(err)
	}
	s.sanitizeVoucher(&voucher)
	return voucher, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]domain.VoucherCategory, error) {
	if s == nil {
		return nil, ErrCatalogUnavailable
	}
	categories, err := s.categories.ListActive(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	for i := range categories {
		categories[i].Name = s.sanitizer.Sanitize(categories[i].Name)
	}
	return categories, nil
}

// sanitizeVoucher strips markup from remote-sourced text before it reaches
// any rendering surface.
func (s *catalogService) sanitizeVoucher(v *domain.Voucher) {
	v.Title = s.sanitizer.Sanitize(v.Title)
	v.Description = s.sanitizer.Sanitize(v.Description)
	v.Category = s.sanitizer.Sanitize(v.Category)
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogVoucherNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}

func (s *catalogService) logEvent(ctx context.Context, event string, fields map[string]any) {
	if s.log == nil {
		return
	}
	s.log(ctx, event, fields)
}
