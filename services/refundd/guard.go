package refundd

import (
	"context"
	"fmt"

	"refundkeeper/native/lovelace"
)

// BalanceReader reports the wallet's spendable balance.
type BalanceReader interface {
	AvailableBalance(ctx context.Context) (lovelace.Lovelace, error)
}

// EnsureCovered fails with *InsufficientBalanceError when the wallet's
// available balance is below the sum of refunds. The batch is all or nothing.
func EnsureCovered(ctx context.Context, wallet BalanceReader, refunds []Refund) error {
	if len(refunds) == 0 {
		return nil
	}
	required, err := totalAmount(refunds)
	if err != nil {
		return fmt.Errorf("refundd: sum refunds: %w", err)
	}
	available, err := wallet.AvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("refundd: wallet balance: %w", err)
	}
	if available < required {
		return &InsufficientBalanceError{Available: available, Required: required}
	}
	return nil
}
