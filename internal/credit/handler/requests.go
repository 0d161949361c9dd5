package handler

import (
	"math/big"

	"hashplanet/internal/credit/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
)

// AmountRequest is the body of transfer and mint requests. Value is a
// decimal string in whole credits, e.g. "1.5".
type AmountRequest struct {
	To    string `json:"to"`
	Value string `json:"amount"`

	recipient id.Principal
}

// Validate implements httputil.Validatable.
func (r *AmountRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	recipient, err := id.ParsePrincipal(r.To)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "to must be a valid principal")
	}
	r.recipient = recipient
	if r.Value == "" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	return nil
}

func (r *AmountRequest) Recipient() id.Principal {
	return r.recipient
}

// Amount converts Value into base units.
func (r *AmountRequest) Amount(decimals int) (*big.Int, error) {
	n, err := models.ParseUnits(r.Value, decimals)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "amount is not a valid decimal")
	}
	return n, nil
}
