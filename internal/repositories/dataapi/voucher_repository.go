package dataapi

import (
	"context"
	"errors"
	"strings"
	"time"

	api "github.com/optima-bank/loyalty/internal/dataapi"
	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
)

const (
	vouchersTable   = "vouchers"
	categoriesTable = "voucher_categories"
)

var (
	errMissingUserID    = errors.New("user id is required")
	errMissingVoucherID = errors.New("voucher id is required")
)

type voucherRow struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Points      int64     `json:"points"`
	ImageURL    string    `json:"image_url"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r voucherRow) toDomain() domain.Voucher {
	return domain.Voucher{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Points:      r.Points,
		ImageURL:    r.ImageURL,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

// VoucherRepository reads the voucher catalog via the data API.
type VoucherRepository struct {
	client *api.Client
}

var _ repositories.VoucherRepository = (*VoucherRepository)(nil)

// NewVoucherRepository constructs a VoucherRepository.
func NewVoucherRepository(client *api.Client) *VoucherRepository {
	return &VoucherRepository{client: client}
}

// List returns active vouchers matching the filter, newest first.
func (r *VoucherRepository) List(ctx context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error) {
	query := r.client.From(vouchersTable).
		Select("*").
		Eq("active", "true")

	if filter.Category != nil {
		category := strings.TrimSpace(*filter.Category)
		if category != "" {
			query = query.Eq("category", category)
		}
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Ilike("title", "%"+search+"%")
	}
	query = query.Order("created_at", api.Desc)

	var rows []voucherRow
	if err := query.Get(ctx, &rows); err != nil {
		return nil, wrapError("voucher repository: list", err)
	}

	vouchers := make([]domain.Voucher, 0, len(rows))
	for _, row := range rows {
		vouchers = append(vouchers, row.toDomain())
	}
	return vouchers, nil
}

// FindByID loads a single active voucher.
func (r *VoucherRepository) FindByID(ctx context.Context, voucherID string) (domain.Voucher, error) {
	voucherID = strings.TrimSpace(voucherID)
	if voucherID == "" {
		return domain.Voucher{}, &Error{op: "voucher repository: find", err: errMissingVoucherID}
	}

	var row voucherRow
	err := r.client.From(vouchersTable).
		Select("*").
		Eq("id", voucherID).
		Eq("active", "true").
		Single(ctx, &row)
	if err != nil {
		return domain.Voucher{}, wrapError("voucher repository: find", err)
	}
	return row.toDomain(), nil
}

// CategoryRepository reads voucher categories via the data API.
type CategoryRepository struct {
	client *api.Client
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a CategoryRepository.
func NewCategoryRepository(client *api.Client) *CategoryRepository {
	return &CategoryRepository{client: client}
}

type categoryRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ListActive returns active categories sorted by name.
func (r *CategoryRepository) ListActive(ctx context.Context) ([]domain.VoucherCategory, error) {
	var rows []categoryRow
	err := r.client.From(categoriesTable).
		Select("*").
		Eq("active", "true").
		Order("name", api.Asc).
		Get(ctx, &rows)
	if err != nil {
		return nil, wrapError("category repository: list", err)
	}

	categories := make([]domain.VoucherCategory, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, domain.VoucherCategory{
			ID:     row.ID,
			Name:   row.Name,
			Active: row.Active,
		})
	}
	return categories, nil
}
