package refundd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"refundkeeper/services/refundd/store"
	"refundkeeper/services/refundd/wallet"
)

// BatchUpdater applies status changes to many addresses in one write.
type BatchUpdater interface {
	BatchUpdateStatus(ctx context.Context, updates []store.StatusUpdate) error
}

// PaymentSender submits a multi-output payment.
type PaymentSender interface {
	SendPayment(ctx context.Context, passphrase string, outputs []wallet.Output) (wallet.Payment, error)
}

// Disburser pays a batch of refunds in a single wallet transaction.
type Disburser struct {
	statuses   BatchUpdater
	wallet     PaymentSender
	passphrase string
	logger     *slog.Logger
}

// NewDisburser constructs a disburser signing with passphrase.
func NewDisburser(statuses BatchUpdater, sender PaymentSender, passphrase string, logger *slog.Logger) (*Disburser, error) {
	if statuses == nil {
		return nil, errors.New("refundd: status store is required")
	}
	if sender == nil {
		return nil, errors.New("refundd: wallet is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Disburser{statuses: statuses, wallet: sender, passphrase: passphrase, logger: logger}, nil
}

// Disburse marks every refund processing, submits one payment with an output
// per refund in order, and marks them processed with the transaction id once
// the wallet reports one. When the wallet rejects the payment or returns no
// id the addresses are left processing for manual reconciliation.
func (d *Disburser) Disburse(ctx context.Context, refunds []Refund) (string, error) {
	if len(refunds) == 0 {
		return "", errors.New("refundd: no refunds to disburse")
	}
	addresses := paymentAddresses(refunds)
	if err := d.statuses.BatchUpdateStatus(ctx, statusUpdates(addresses, store.StatusProcessing, "")); err != nil {
		return "", fmt.Errorf("refundd: mark processing: %w", err)
	}

	outputs := make([]wallet.Output, 0, len(refunds))
	for _, r := range refunds {
		outputs = append(outputs, wallet.Output{Address: r.ReturnAddress.Address, Amount: r.Amount})
	}
	payment, err := d.wallet.SendPayment(ctx, d.passphrase, outputs)
	if err != nil {
		d.logger.Error("refund payment rejected", "addresses", addresses, "error", err)
		return "", &SubmissionError{Addresses: addresses, Err: err}
	}
	if payment.ID == "" {
		d.logger.Error("refund payment returned no transaction id", "addresses", addresses)
		return "", &SubmissionError{Addresses: addresses}
	}
	d.logger.Info("refund payment submitted", "tx_id", payment.ID, "addresses", addresses)

	// The payment is on its way; record it even if the caller has gone.
	if err := d.statuses.BatchUpdateStatus(context.WithoutCancel(ctx), statusUpdates(addresses, store.StatusProcessed, payment.ID)); err != nil {
		return payment.ID, fmt.Errorf("refundd: mark processed after tx %s: %w", payment.ID, err)
	}
	return payment.ID, nil
}

func statusUpdates(addresses []string, status store.Status, txID string) []store.StatusUpdate {
	updates := make([]store.StatusUpdate, 0, len(addresses))
	for _, id := range addresses {
		updates = append(updates, store.StatusUpdate{ID: id, Status: status, TxID: txID})
	}
	return updates
}
