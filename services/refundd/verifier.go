package refundd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"refundkeeper/native/lovelace"
	"refundkeeper/services/refundd/ledger"
	"refundkeeper/services/refundd/store"
)

// StatusUpdater applies a status change to a single used address.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, update store.StatusUpdate) error
}

// SessionLookup resolves the paid session funded by a payment address. It
// returns nil without error when no session was recorded.
type SessionLookup interface {
	PaidSession(ctx context.Context, paymentAddress string) (*store.PaidSession, error)
}

// VerifierConfig captures the collaborators of a Verifier.
type VerifierConfig struct {
	Ledger    ledger.Lookup
	Sessions  SessionLookup
	Statuses  StatusUpdater
	Threshold lovelace.Lovelace
	Logger    *slog.Logger
}

// Verifier decides whether a used address is owed a refund.
type Verifier struct {
	ledger    ledger.Lookup
	sessions  SessionLookup
	statuses  StatusUpdater
	threshold lovelace.Lovelace
	logger    *slog.Logger
}

// NewVerifier constructs a verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("refundd: ledger lookup is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("refundd: session lookup is required")
	}
	if cfg.Statuses == nil {
		return nil, errors.New("refundd: status store is required")
	}
	if cfg.Threshold < 0 {
		return nil, errors.New("refundd: refund threshold must be non-negative")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		ledger:    cfg.Ledger,
		sessions:  cfg.Sessions,
		statuses:  cfg.Statuses,
		threshold: cfg.Threshold,
		logger:    logger,
	}, nil
}

// Verify classifies addressID. Settled and bad-state verdicts are written to
// the store before returning; refund verdicts are not, so the address stays
// pending until the disburser claims it.
//
// A ledger failure yields VerdictSkip with an error matching ErrLookupFailed.
// Any other error is a store failure and should abort the run.
func (v *Verifier) Verify(ctx context.Context, addressID string) (Verdict, error) {
	totals, err := v.ledger.Lookup(ctx, addressID)
	if err != nil {
		v.logger.Warn("ledger lookup failed", "address", addressID, "error", err)
		return Verdict{Kind: VerdictSkip}, &LookupError{Address: addressID, Err: err}
	}
	if totals.TotalPayments == 0 {
		return v.settle(ctx, addressID, store.StatusProcessed, VerdictSettled)
	}
	if totals.ReturnAddress == nil || strings.TrimSpace(totals.ReturnAddress.Address) == "" {
		v.logger.Warn("payment has no return address", "address", addressID)
		return v.settle(ctx, addressID, store.StatusBadState, VerdictBadState)
	}

	session, err := v.sessions.PaidSession(ctx, addressID)
	if err != nil {
		return Verdict{}, fmt.Errorf("refundd: paid session for %s: %w", addressID, err)
	}
	var cost lovelace.Lovelace
	if session != nil {
		cost = lovelace.Lovelace(session.Cost)
	}
	balance := totals.TotalPayments - cost
	if balance > v.threshold {
		return Verdict{Kind: VerdictRefund, Refund: &Refund{
			PaymentAddress: addressID,
			ReturnAddress:  *totals.ReturnAddress,
			Amount:         balance,
		}}, nil
	}
	return v.settle(ctx, addressID, store.StatusProcessed, VerdictSettled)
}

func (v *Verifier) settle(ctx context.Context, addressID string, status store.Status, kind VerdictKind) (Verdict, error) {
	if err := v.statuses.UpdateStatus(ctx, store.StatusUpdate{ID: addressID, Status: status}); err != nil {
		return Verdict{}, fmt.Errorf("refundd: mark %s %s: %w", addressID, status, err)
	}
	return Verdict{Kind: kind}, nil
}
