package handler

import (
	"strings"

	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
)

// maxSourceLength bounds the uri accepted from callers before it reaches the codec.
const maxSourceLength = 256

// ClaimRequest is the HTTP request body for POST /claims.
type ClaimRequest struct {
	URI string `json:"uri"`
}

// Validate implements httputil.Validatable. Normalization happens in the
// service; this only rejects bodies that cannot be a source string.
func (r *ClaimRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.URI) > maxSourceLength {
		return dErrors.New(dErrors.CodeValidation, "uri is too long")
	}
	if strings.TrimSpace(r.URI) == "" {
		return dErrors.New(dErrors.CodeValidation, "uri is required")
	}
	return nil
}

// TransferRequest is the HTTP request body for POST /tokens/{id}/transfer.
type TransferRequest struct {
	To string `json:"to"`

	recipient id.Principal
}

// Validate implements httputil.Validatable.
func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	recipient, err := id.ParsePrincipal(r.To)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "to must be a valid principal")
	}
	r.recipient = recipient
	return nil
}

// Recipient returns the validated recipient.
func (r *TransferRequest) Recipient() id.Principal {
	return r.recipient
}
