package refundd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"refundkeeper/native/lovelace"
	"refundkeeper/services/refundd/ledger"
	"refundkeeper/services/refundd/store"
	"refundkeeper/services/refundd/wallet"
)

// journal records collaborator calls across fakes so tests can assert ordering.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeStore struct {
	mu       sync.Mutex
	journal  *journal
	rows     map[string]*store.UsedAddress
	sessions map[string]*store.PaidSession
	runs     []store.RunRecord

	candidatesErr error
	updateErr     error
	batchErr      map[store.Status]error
}

func newFakeStore(j *journal) *fakeStore {
	return &fakeStore{
		journal:  j,
		rows:     make(map[string]*store.UsedAddress),
		sessions: make(map[string]*store.PaidSession),
		batchErr: make(map[store.Status]error),
	}
}

func (s *fakeStore) addPending(id string, added time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = &store.UsedAddress{ID: id, Status: store.StatusPending, DateAdded: added}
}

func (s *fakeStore) addSession(paymentAddress string, cost lovelace.Lovelace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[paymentAddress] = &store.PaidSession{PaymentAddress: paymentAddress, Cost: cost.Int64()}
}

func (s *fakeStore) row(id string) store.UsedAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *fakeStore) RefundableAddresses(_ context.Context, cutoff time.Time, limit int) ([]store.UsedAddress, error) {
	s.journal.add("candidates:%d", limit)
	if s.candidatesErr != nil {
		return nil, s.candidatesErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.UsedAddress, 0, len(s.rows))
	for _, row := range s.rows {
		if row.Status == store.StatusPending && row.DateAdded.Before(cutoff) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateAdded.Before(out[j].DateAdded) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, update store.StatusUpdate) error {
	s.journal.add("update:%s:%s", update.ID, update.Status)
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.apply(update)
}

func (s *fakeStore) BatchUpdateStatus(ctx context.Context, updates []store.StatusUpdate) error {
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, u.ID)
	}
	var status store.Status
	var txID string
	if len(updates) > 0 {
		status, txID = updates[0].Status, updates[0].TxID
	}
	s.journal.add("batch:%s:%s:%s", status, strings.Join(ids, ","), txID)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.batchErr[status]; err != nil {
		return err
	}
	for _, u := range updates {
		if err := s.apply(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) apply(update store.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[update.ID]
	if !ok {
		return errors.New("unknown address " + update.ID)
	}
	row.Status = update.Status
	if update.TxID != "" {
		row.TxID = update.TxID
	}
	return nil
}

func (s *fakeStore) PaidSession(_ context.Context, paymentAddress string) (*store.PaidSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[paymentAddress]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *fakeStore) RecordRun(_ context.Context, run store.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// fakeLedger serves canned totals keyed by payment address.
type fakeLedger struct {
	journal *journal
	totals  map[string]ledger.Totals
	errs    map[string]error
}

func newFakeLedger(j *journal) *fakeLedger {
	return &fakeLedger{journal: j, totals: make(map[string]ledger.Totals), errs: make(map[string]error)}
}

func (l *fakeLedger) pays(paymentAddress string, total lovelace.Lovelace, returnAddress string) {
	totals := ledger.Totals{TotalPayments: total}
	if returnAddress != "" {
		totals.ReturnAddress = &ledger.ReturnAddress{Address: returnAddress, TxHash: "tx-" + paymentAddress}
	}
	l.totals[paymentAddress] = totals
}

func (l *fakeLedger) Lookup(_ context.Context, paymentAddress string) (ledger.Totals, error) {
	l.journal.add("lookup:%s", paymentAddress)
	if err := l.errs[paymentAddress]; err != nil {
		return ledger.Totals{}, err
	}
	return l.totals[paymentAddress], nil
}

// fakeWallet records submitted payments.
type fakeWallet struct {
	mu         sync.Mutex
	journal    *journal
	available  lovelace.Lovelace
	balanceErr error
	sendErr    error
	txID       string
	passphrase string
	sent       [][]wallet.Output
	// onSend runs after the payment is accepted, before SendPayment returns.
	onSend func()
}

func (w *fakeWallet) AvailableBalance(context.Context) (lovelace.Lovelace, error) {
	w.journal.add("balance")
	return w.available, w.balanceErr
}

func (w *fakeWallet) TotalBalance(context.Context) (lovelace.Lovelace, error) {
	return w.available, w.balanceErr
}

func (w *fakeWallet) SendPayment(_ context.Context, passphrase string, outputs []wallet.Output) (wallet.Payment, error) {
	parts := make([]string, 0, len(outputs))
	for _, o := range outputs {
		parts = append(parts, fmt.Sprintf("%s=%d", o.Address, o.Amount))
	}
	w.journal.add("send:%s", strings.Join(parts, ","))
	w.mu.Lock()
	defer w.mu.Unlock()
	w.passphrase = passphrase
	w.sent = append(w.sent, append([]wallet.Output(nil), outputs...))
	if w.sendErr != nil {
		return wallet.Payment{}, w.sendErr
	}
	if w.onSend != nil {
		w.onSend()
	}
	return wallet.Payment{ID: w.txID}, nil
}

// fakeLock counts acquisitions and releases.
type fakeLock struct {
	mu         sync.Mutex
	journal    *journal
	busy       bool
	acquireErr error
	held       bool
	releases   int
}

func (l *fakeLock) TryAcquire(_ context.Context, name string) (bool, error) {
	l.journal.add("lock:%s", name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.busy || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, name string) error {
	l.journal.add("unlock:%s", name)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.releases++
	return nil
}

func (l *fakeLock) released() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releases
}

func ada(n int64) lovelace.Lovelace { return lovelace.Lovelace(n) * lovelace.PerADA }
