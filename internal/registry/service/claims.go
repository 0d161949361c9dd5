package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hashplanet/internal/registry/codec"
	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/sentinel"
)

// Operation names used for spans, metrics, and logs.
const (
	opClaim      = "claim"
	opClaimByURI = "claim_by_uri"
	opRenounce   = "renounce"
	opTransfer   = "transfer"
)

// Claim moves an unclaimed entry to caller.
//
// Errors: unknown_identifier, already_claimed, validation_error.
func (s *Service) Claim(ctx context.Context, tokenID id.Identifier, caller id.Principal) (entry *models.Entry, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, opClaim, attribute.String("token_id", tokenID.String()))
	defer func() {
		endSpan(span, err)
		s.observe(ctx, opClaim, start, err)
	}()

	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	return s.claim(ctx, tokenID, caller)
}

func (s *Service) claim(ctx context.Context, tokenID id.Identifier, caller id.Principal) (*models.Entry, error) {
	err := s.store.TransferOwnership(ctx, tokenID, models.Unclaimed(), models.ClaimedBy(caller))
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, unknownIdentifier(tokenID)
	case errors.Is(err, sentinel.ErrInvalidState):
		return nil, dErrors.New(dErrors.CodeAlreadyClaimed, "entry "+tokenID.String()+" is already claimed")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim entry")
	}

	entry := s.committed(ctx, tokenID, models.ClaimedBy(caller))
	s.logAudit(ctx, audit.EventClaimed, entry, s.meta.Sentinel, caller)
	s.reward(ctx, caller, tokenID)
	return entry, nil
}

// ClaimByURI claims the entry addressed by a human-typed source string. The
// source is normalized before validation. Under the extensible policy an
// unregistered source becomes a new entry owned by caller.
//
// Errors: invalid_source_string, unknown_identifier, already_claimed,
// validation_error.
func (s *Service) ClaimByURI(ctx context.Context, source string, caller id.Principal) (entry *models.Entry, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, opClaimByURI, attribute.String("source", source))
	defer func() {
		endSpan(span, err)
		s.observe(ctx, opClaimByURI, start, err)
	}()

	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	source = codec.Normalize(source)
	tokenID, err := codec.Derive(source)
	if err != nil {
		return nil, err
	}

	_, err = s.store.Find(ctx, tokenID)
	switch {
	case err == nil:
		return s.claim(ctx, tokenID, caller)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up entry")
	case s.meta.Policy != models.PolicyExtensible:
		return nil, unknownIdentifier(tokenID)
	}

	entry, err = s.store.Register(ctx, tokenID, source, models.ClaimedBy(caller))
	if errors.Is(err, sentinel.ErrConflict) {
		// Another caller registered it first; it is now an ordinary claim.
		return s.claim(ctx, tokenID, caller)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register entry")
	}

	s.logAudit(ctx, audit.EventRegistered, entry, s.meta.Sentinel, caller)
	s.reward(ctx, caller, tokenID)
	return entry, nil
}

// Renounce returns caller's entry to the unclaimed pool.
//
// Errors: unknown_identifier, not_owner, validation_error.
func (s *Service) Renounce(ctx context.Context, tokenID id.Identifier, caller id.Principal) (entry *models.Entry, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, opRenounce, attribute.String("token_id", tokenID.String()))
	defer func() {
		endSpan(span, err)
		s.observe(ctx, opRenounce, start, err)
	}()

	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	if err := s.transfer(ctx, tokenID, models.ClaimedBy(caller), models.Unclaimed()); err != nil {
		return nil, err
	}

	entry = s.committed(ctx, tokenID, models.Unclaimed())
	s.logAudit(ctx, audit.EventRenounced, entry, caller, s.meta.Sentinel)
	return entry, nil
}

// Transfer hands caller's entry directly to another principal. Returning an
// entry to the pool is Renounce; naming the sentinel here is rejected.
//
// Errors: unknown_identifier, not_owner, validation_error.
func (s *Service) Transfer(ctx context.Context, tokenID id.Identifier, caller, to id.Principal) (entry *models.Entry, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, opTransfer, attribute.String("token_id", tokenID.String()))
	defer func() {
		endSpan(span, err)
		s.observe(ctx, opTransfer, start, err)
	}()

	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	if err := s.validateRecipient(to); err != nil {
		return nil, err
	}
	if err := s.transfer(ctx, tokenID, models.ClaimedBy(caller), models.ClaimedBy(to)); err != nil {
		return nil, err
	}

	entry = s.committed(ctx, tokenID, models.ClaimedBy(to))
	s.logAudit(ctx, audit.EventTransferred, entry, caller, to)
	return entry, nil
}

// transfer moves an entry the caller must currently own.
func (s *Service) transfer(ctx context.Context, tokenID id.Identifier, from, to models.State) error {
	if err := models.ValidateTransition(from, to); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid ownership transition")
	}
	err := s.store.TransferOwnership(ctx, tokenID, from, to)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return unknownIdentifier(tokenID)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeNotOwner, "caller does not own entry "+tokenID.String())
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer entry")
	}
}

// committed describes an entry as this call's write left it. Source, index
// and creation time come from a re-read; the state is the one the write
// produced, even if another write has landed since.
func (s *Service) committed(ctx context.Context, tokenID id.Identifier, state models.State) *models.Entry {
	entry, err := s.store.Find(ctx, tokenID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to reload entry after write",
			"token_id", tokenID.String(),
			"error", err,
		)
		return &models.Entry{ID: tokenID, Index: -1, State: state}
	}
	out := *entry
	out.State = state
	return &out
}

func (s *Service) validateCaller(caller id.Principal) error {
	if _, err := id.ParsePrincipal(string(caller)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid caller")
	}
	if caller == s.meta.Sentinel {
		return dErrors.New(dErrors.CodeValidation, "the registry principal cannot act as a caller")
	}
	return nil
}

func (s *Service) validateRecipient(to id.Principal) error {
	if _, err := id.ParsePrincipal(string(to)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid recipient")
	}
	if to == s.meta.Sentinel {
		return dErrors.New(dErrors.CodeValidation, "use renounce to return an entry to the registry")
	}
	return nil
}

func unknownIdentifier(tokenID id.Identifier) error {
	return dErrors.New(dErrors.CodeUnknownIdentifier, "no entry for identifier "+tokenID.String())
}
