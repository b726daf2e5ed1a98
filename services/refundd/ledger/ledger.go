package ledger

import (
	"context"

	"refundkeeper/native/lovelace"
)

// ReturnAddress identifies where a refund is sent. TxHash and OutputIndex
// locate the payment that funded the address when the ledger reports it.
type ReturnAddress struct {
	Address     string
	TxHash      string
	OutputIndex uint32
}

// Totals summarises what the ledger knows about a payment address.
type Totals struct {
	TotalPayments lovelace.Lovelace
	ReturnAddress *ReturnAddress
}

// Lookup resolves ledger totals for payment addresses. Implementations return
// an error on transport or indexing failures.
type Lookup interface {
	Lookup(ctx context.Context, paymentAddress string) (Totals, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, paymentAddress string) (Totals, error)

// Lookup calls f.
func (f LookupFunc) Lookup(ctx context.Context, paymentAddress string) (Totals, error) {
	return f(ctx, paymentAddress)
}
