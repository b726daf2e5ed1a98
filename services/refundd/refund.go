package refundd

import (
	"refundkeeper/native/lovelace"
	"refundkeeper/services/refundd/ledger"
)

// Refund is a verified amount owed back to the sender of a payment address.
// Refunds are built per run and never persisted; the resulting transaction id
// on the used address is the durable record.
type Refund struct {
	PaymentAddress string
	ReturnAddress  ledger.ReturnAddress
	Amount         lovelace.Lovelace
}

// VerdictKind classifies the outcome of verifying one address.
type VerdictKind int

const (
	// VerdictSkip leaves the address untouched for a later run.
	VerdictSkip VerdictKind = iota
	// VerdictRefund carries a refund awaiting disbursement.
	VerdictRefund
	// VerdictSettled means nothing is owed and the address was marked processed.
	VerdictSettled
	// VerdictBadState means the ledger data was malformed and the address was
	// marked bad_state for manual triage.
	VerdictBadState
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictRefund:
		return "refund"
	case VerdictSettled:
		return "settled"
	case VerdictBadState:
		return "bad_state"
	default:
		return "skip"
	}
}

// Verdict is the result of verifying an address. Refund is set only for
// VerdictRefund.
type Verdict struct {
	Kind   VerdictKind
	Refund *Refund
}

func paymentAddresses(refunds []Refund) []string {
	out := make([]string, 0, len(refunds))
	for _, r := range refunds {
		out = append(out, r.PaymentAddress)
	}
	return out
}

func totalAmount(refunds []Refund) (lovelace.Lovelace, error) {
	amounts := make([]lovelace.Lovelace, 0, len(refunds))
	for _, r := range refunds {
		amounts = append(amounts, r.Amount)
	}
	return lovelace.Sum(amounts...)
}
