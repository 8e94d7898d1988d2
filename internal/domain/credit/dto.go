package credit

import "github.com/google/uuid"

// AddGrantRequest for POST /accounts/{id}/grants.
// Pointers tell a missing field from an explicit zero.
type AddGrantRequest struct {
	Amount      *int64 `json:"amount" validate:"required,gte=0"`
	EffectiveAt *int64 `json:"effective_at" validate:"required"`
	ExpiresAt   *int64 `json:"expires_at" validate:"required"`
}

func (r AddGrantRequest) Input() GrantInput {
	return GrantInput{Amount: *r.Amount, EffectiveAt: *r.EffectiveAt, ExpiresAt: *r.ExpiresAt}
}

// AddDeductionRequest for POST /accounts/{id}/deductions
type AddDeductionRequest struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	EffectiveAt *int64 `json:"effective_at" validate:"required"`
}

func (r AddDeductionRequest) Input() DeductionInput {
	return DeductionInput{Amount: r.Amount, EffectiveAt: *r.EffectiveAt}
}

// BalanceResponse for GET /accounts/{id}/balance
type BalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	At        int64     `json:"at"`
	Balance   int64     `json:"balance"`
}
