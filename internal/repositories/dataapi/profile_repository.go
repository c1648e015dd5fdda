package dataapi

import (
	"context"
	"strings"
	"time"

	api "github.com/optima-bank/loyalty/internal/dataapi"
	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
)

const profilesTable = "user_profiles"

type profileRow struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Points    int64     `json:"points"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r profileRow) toDomain() domain.UserProfile {
	return domain.UserProfile{
		UserID:    r.UserID,
		Email:     r.Email,
		FullName:  r.FullName,
		Points:    r.Points,
		Tier:      r.Tier,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ProfileRepository reads and writes loyalty profile rows via the data API.
type ProfileRepository struct {
	client *api.Client
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(client *api.Client) *ProfileRepository {
	return &ProfileRepository{client: client}
}

// FindByUserID loads the profile keyed by the identity user id.
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID string) (domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, &Error{op: "profile repository: find", err: errMissingUserID}
	}

	var row profileRow
	err := r.client.From(profilesTable).
		Select("*").
		Eq("user_id", userID).
		Single(ctx, &row)
	if err != nil {
		return domain.UserProfile{}, wrapError("profile repository: find", err)
	}
	return row.toDomain(), nil
}

// Insert creates a new profile row and returns the stored representation.
func (r *ProfileRepository) Insert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if strings.TrimSpace(profile.UserID) == "" {
		return domain.UserProfile{}, &Error{op: "profile repository: insert", err: errMissingUserID}
	}

	payload := map[string]any{
		"user_id":   profile.UserID,
		"email":     profile.Email,
		"full_name": profile.FullName,
		"points":    profile.Points,
		"tier":      profile.Tier,
	}

	var stored profileRow
	if err := r.client.From(profilesTable).Insert(ctx, payload, &stored); err != nil {
		return domain.UserProfile{}, wrapError("profile repository: insert", err)
	}
	return stored.toDomain(), nil
}
