package wallet

import (
	"context"
	"fmt"

	"refundkeeper/native/lovelace"
)

// Output is a single payment output of a refund transaction.
type Output struct {
	Address string
	Amount  lovelace.Lovelace
}

// Payment describes a transaction accepted by the wallet. ID is empty when the
// wallet did not report an identifier.
type Payment struct {
	ID string
}

// Balance reports the wallet's spendable and total funds.
type Balance struct {
	Available lovelace.Lovelace
	Total     lovelace.Lovelace
}

// Gateway captures the functionality refundd requires from the treasury wallet.
type Gateway interface {
	AvailableBalance(ctx context.Context) (lovelace.Lovelace, error)
	TotalBalance(ctx context.Context) (lovelace.Lovelace, error)
	SendPayment(ctx context.Context, passphrase string, outputs []Output) (Payment, error)
}

// FuncWallet adapts callback functions to the Gateway interface.
type FuncWallet struct {
	BalanceFunc func(ctx context.Context) (Balance, error)
	SendFunc    func(ctx context.Context, passphrase string, outputs []Output) (Payment, error)
}

// AvailableBalance delegates to the configured callback.
func (w FuncWallet) AvailableBalance(ctx context.Context) (lovelace.Lovelace, error) {
	balance, err := w.balance(ctx)
	return balance.Available, err
}

// TotalBalance delegates to the configured callback.
func (w FuncWallet) TotalBalance(ctx context.Context) (lovelace.Lovelace, error) {
	balance, err := w.balance(ctx)
	return balance.Total, err
}

// SendPayment delegates to the configured callback.
func (w FuncWallet) SendPayment(ctx context.Context, passphrase string, outputs []Output) (Payment, error) {
	if w.SendFunc == nil {
		return Payment{}, fmt.Errorf("wallet: send not configured")
	}
	return w.SendFunc(ctx, passphrase, outputs)
}

func (w FuncWallet) balance(ctx context.Context) (Balance, error) {
	if w.BalanceFunc == nil {
		return Balance{}, fmt.Errorf("wallet: balance not configured")
	}
	return w.BalanceFunc(ctx)
}
