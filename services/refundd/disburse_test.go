package refundd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"refundkeeper/services/refundd/store"
)

func newDisburseFixture(t *testing.T) (*journal, *fakeStore, *fakeWallet, *Disburser) {
	t.Helper()
	j := &journal{}
	st := newFakeStore(j)
	st.addPending("p1", time.Now())
	st.addPending("p2", time.Now())
	w := &fakeWallet{journal: j, available: ada(10), txID: "tx-abc"}
	d, err := NewDisburser(st, w, "secret", nil)
	require.NoError(t, err)
	return j, st, w, d
}

func TestDisburseMarksProcessingThenPaysThenProcessed(t *testing.T) {
	j, st, w, d := newDisburseFixture(t)

	txID, err := d.Disburse(context.Background(), refundsOf(500, 10))
	require.NoError(t, err)
	require.Equal(t, "tx-abc", txID)
	require.Equal(t, []string{
		"batch:processing:p1,p2:",
		"send:r1=500,r2=10",
		"batch:processed:p1,p2:tx-abc",
	}, j.list())
	require.Equal(t, "secret", w.passphrase)
	for _, id := range []string{"p1", "p2"} {
		row := st.row(id)
		require.Equal(t, store.StatusProcessed, row.Status)
		require.Equal(t, "tx-abc", row.TxID)
	}
}

func TestDisburseLeavesAddressesProcessingOnRejection(t *testing.T) {
	j, st, w, d := newDisburseFixture(t)
	w.sendErr = errors.New("not enough money")

	txID, err := d.Disburse(context.Background(), refundsOf(500, 10))
	require.Error(t, err)
	require.Empty(t, txID)
	require.ErrorIs(t, err, ErrSubmissionFailed)
	var submission *SubmissionError
	require.ErrorAs(t, err, &submission)
	require.Equal(t, []string{"p1", "p2"}, submission.Addresses)
	require.Equal(t, []string{"batch:processing:p1,p2:", "send:r1=500,r2=10"}, j.list())
	require.Equal(t, store.StatusProcessing, st.row("p1").Status)
	require.Equal(t, store.StatusProcessing, st.row("p2").Status)
}

func TestDisburseTreatsMissingTxIDAsFailure(t *testing.T) {
	_, st, w, d := newDisburseFixture(t)
	w.txID = ""

	_, err := d.Disburse(context.Background(), refundsOf(500))
	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.Equal(t, store.StatusProcessing, st.row("p1").Status)
}

func TestDisburseSkipsPaymentWhenClaimFails(t *testing.T) {
	j, st, w, d := newDisburseFixture(t)
	st.batchErr[store.StatusProcessing] = errors.New("database is locked")

	_, err := d.Disburse(context.Background(), refundsOf(500, 10))
	require.Error(t, err)
	require.Empty(t, w.sent)
	require.Equal(t, []string{"batch:processing:p1,p2:"}, j.list())
}

func TestDisburseReportsTxIDWhenFinalWriteFails(t *testing.T) {
	_, st, _, d := newDisburseFixture(t)
	st.batchErr[store.StatusProcessed] = errors.New("connection reset")

	txID, err := d.Disburse(context.Background(), refundsOf(500, 10))
	require.Error(t, err)
	require.Equal(t, "tx-abc", txID)
	require.NotErrorIs(t, err, ErrSubmissionFailed)
	require.Contains(t, err.Error(), "tx-abc")
}

func TestDisburseRejectsEmptyBatch(t *testing.T) {
	j, _, _, d := newDisburseFixture(t)
	_, err := d.Disburse(context.Background(), nil)
	require.Error(t, err)
	require.Empty(t, j.list())
}

func TestDisburseRecordsAcceptedPaymentAfterCancellation(t *testing.T) {
	j, st, w, d := newDisburseFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.onSend = cancel

	txID, err := d.Disburse(ctx, refundsOf(500, 10))
	require.NoError(t, err)
	require.Equal(t, "tx-abc", txID)
	require.Equal(t, "batch:processed:p1,p2:tx-abc", j.list()[2])
	for _, id := range []string{"p1", "p2"} {
		row := st.row(id)
		require.Equal(t, store.StatusProcessed, row.Status)
		require.Equal(t, "tx-abc", row.TxID)
	}
}
