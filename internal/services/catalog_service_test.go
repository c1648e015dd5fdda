package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
)

type stubVoucherRepository struct {
	listFn   func(ctx context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error)
	findFn   func(ctx context.Context, voucherID string) (domain.Voucher, error)
	listCall int
}

func (s *stubVoucherRepository) List(ctx context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error) {
	s.listCall++
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubVoucherRepository) FindByID(ctx context.Context, voucherID string) (domain.Voucher, error) {
	if s.findFn == nil {
		return domain.Voucher{}, nil
	}
	return s.findFn(ctx, voucherID)
}

type stubCategoryRepository struct {
	listFn func(ctx context.Context) ([]domain.VoucherCategory, error)
}

func (s *stubCategoryRepository) ListActive(ctx context.Context) ([]domain.VoucherCategory, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

type categorizedRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *categorizedRepoError) Error() string       { return "repo error" }
func (e *categorizedRepoError) IsNotFound() bool    { return e.notFound }
func (e *categorizedRepoError) IsConflict() bool    { return e.conflict }
func (e *categorizedRepoError) IsUnavailable() bool { return e.unavailable }

func newTestCatalogService(t *testing.T, vouchers *stubVoucherRepository, categories *stubCategoryRepository) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{Vouchers: vouchers, Categories: categories})
	if err != nil {
		t.Fatalf("NewCatalogService returned error: %v", err)
	}
	return svc
}

func TestCatalogServiceListSanitizesRemoteText(t *testing.T) {
	vouchers := &stubVoucherRepository{
		listFn: func(context.Context, repositories.VoucherFilter) ([]domain.Voucher, error) {
			return []domain.Voucher{{
				ID:          "v-1",
				Title:       `Coffee <script>alert("x")</script>`,
				Description: "<b>Bold</b> deal",
				Category:    "food",
			}}, nil
		},
	}
	svc := newTestCatalogService(t, vouchers, &stubCategoryRepository{})

	got, err := svc.ListVouchers(context.Background(), repositories.VoucherFilter{})
	if err != nil {
		t.Fatalf("ListVouchers returned error: %v", err)
	}
	if got[0].Title != "Coffee " {
		t.Fatalf("expected script stripped from title, got %q", got[0].Title)
	}
	if got[0].Description != "Bold deal" {
		t.Fatalf("expected markup stripped from description, got %q", got[0].Description)
	}
}

func TestCatalogServiceListEmptyResultIsNotAnError(t *testing.T) {
	vouchers := &stubVoucherRepository{
		listFn: func(context.Context, repositories.VoucherFilter) ([]domain.Voucher, error) {
			return []domain.Voucher{}, nil
		},
	}
	svc := newTestCatalogService(t, vouchers, &stubCategoryRepository{})

	got, err := svc.ListVouchers(context.Background(), repositories.VoucherFilter{Search: "nothing"})
	if err != nil {
		t.Fatalf("expected nil error for empty result, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %d", len(got))
	}
}

func TestCatalogServiceListFetchFailureIsUnavailable(t *testing.T) {
	vouchers := &stubVoucherRepository{
		listFn: func(context.Context, repositories.VoucherFilter) ([]domain.Voucher, error) {
			return nil, &categorizedRepoError{unavailable: true}
		},
	}
	svc := newTestCatalogService(t, vouchers, &stubCategoryRepository{})

	if _, err := svc.ListVouchers(context.Background(), repositories.VoucherFilter{}); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestCatalogServiceListNormalizesFilter(t *testing.T) {
	blank := "  "
	var seen repositories.VoucherFilter
	vouchers := &stubVoucherRepository{
		listFn: func(_ context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error) {
			seen = filter
			return nil, nil
		},
	}
	svc := newTestCatalogService(t, vouchers, &stubCategoryRepository{})

	if _, err := svc.ListVouchers(context.Background(), repositories.VoucherFilter{Category: &blank, Search: " latte "}); err != nil {
		t.Fatalf("ListVouchers returned error: %v", err)
	}
	if seen.Category != nil {
		t.Fatalf("expected blank category treated as nil")
	}
	if seen.Search != "latte" {
		t.Fatalf("expected trimmed search, got %q", seen.Search)
	}
}

func TestCatalogServiceGetVoucherNotFound(t *testing.T) {
	vouchers := &stubVoucherRepository{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return domain.Voucher{}, &categorizedRepoError{notFound: true}
		},
	}
	svc := newTestCatalogService(t, vouchers, &stubCategoryRepository{})

	if _, err := svc.GetVoucher(context.Background(), "v-404"); !errors.Is(err, ErrCatalogVoucherNotFound) {
		t.Fatalf("expected ErrCatalogVoucherNotFound, got %v", err)
	}
	if _, err := svc.GetVoucher(context.Background(), "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for blank id, got %v", err)
	}
}

func TestCatalogServiceListCategories(t *testing.T) {
	categories := &stubCategoryRepository{
		listFn: func(context.Context) ([]domain.VoucherCategory, error) {
			return []domain.VoucherCategory{{ID: "c-1", Name: "<i>Food</i>", Active: true}}, nil
		},
	}
	svc := newTestCatalogService(t, &stubVoucherRepository{}, categories)

	got, err := svc.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories returned error: %v", err)
	}
	if got[0].Name != "Food" {
		t.Fatalf("expected sanitized name, got %q", got[0].Name)
	}
}

func TestNewCatalogServiceValidatesDeps(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{Categories: &stubCategoryRepository{}}); err == nil {
		t.Fatalf("expected error for missing voucher repository")
	}
	if _, err := NewCatalogService(CatalogServiceDeps{Vouchers: &stubVoucherRepository{}}); err == nil {
		t.Fatalf("expected error for missing category repository")
	}
}
