package dataapi

import (
	"context"
	"errors"
	"strings"

	api "github.com/optima-bank/loyalty/internal/dataapi"
	"github.com/optima-bank/loyalty/internal/repositories"
)

const redeemProcedure = "redeem_vouchers"

// RedemptionRepository invokes the remote atomic redemption procedure.
type RedemptionRepository struct {
	client *api.Client
}

var _ repositories.RedemptionRepository = (*RedemptionRepository)(nil)

// NewRedemptionRepository constructs a RedemptionRepository.
func NewRedemptionRepository(client *api.Client) *RedemptionRepository {
	return &RedemptionRepository{client: client}
}

type redemptionLine struct {
	VoucherID  string `json:"voucher_id"`
	Quantity   int    `json:"quantity"`
	PointsUsed int64  `json:"points_used"`
}

type redeemParams struct {
	UserID      string           `json:"user_id"`
	VoucherData []redemptionLine `json:"voucher_data"`
	TotalPoints int64            `json:"total_points"`
}

type redeemResult struct {
	Success         bool   `json:"success"`
	Reference       string `json:"reference"`
	RemainingPoints *int64 `json:"remaining_points"`
	Error           string `json:"error"`
}

// Redeem performs the single transactional deduction-and-record call.
func (r *RedemptionRepository) Redeem(ctx context.Context, req repositories.RedemptionRequest) (repositories.RedemptionResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return repositories.RedemptionResult{}, &Error{op: "redemption repository: redeem", err: errMissingUserID}
	}
	if len(req.Lines) == 0 {
		return repositories.RedemptionResult{}, &Error{op: "redemption repository: redeem", err: errors.New("no redemption lines")}
	}

	params := redeemParams{
		UserID:      req.UserID,
		VoucherData: make([]redemptionLine, 0, len(req.Lines)),
		TotalPoints: req.TotalPoints,
	}
	for _, line := range req.Lines {
		params.VoucherData = append(params.VoucherData, redemptionLine{
			VoucherID:  line.VoucherID,
			Quantity:   line.Quantity,
			PointsUsed: line.PointsUsed,
		})
	}

	var result redeemResult
	if err := r.client.RPC(ctx, redeemProcedure, params, &result); err != nil {
		return repositories.RedemptionResult{}, wrapError("redemption repository: redeem", err)
	}
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "redemption rejected"
		}
		return repositories.RedemptionResult{}, &Error{op: "redemption repository: redeem", err: errors.New(message), conflict: true}
	}

	mapped := repositories.RedemptionResult{Reference: result.Reference}
	if result.RemainingPoints != nil {
		mapped.RemainingPoints = *result.RemainingPoints
		mapped.RemainingKnown = true
	}
	return mapped, nil
}
