package anchoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/internal/core/ports/mocks"
	"bluecarbon-registry/pkg/apperror"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

// fakeLedger accepts submissions after failFirst transport failures and
// reports the status stored per tx ref.
type fakeLedger struct {
	mu        sync.Mutex
	submits   int
	failFirst int
	failWith  error
	statuses  map[string]domain.LedgerTxStatus
	block     chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{statuses: make(map[string]domain.LedgerTxStatus)}
}

func (l *fakeLedger) Submit(ctx context.Context, _ []byte) (string, error) {
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++
	if l.submits <= l.failFirst {
		if l.failWith != nil {
			return "", l.failWith
		}
		return "", fmt.Errorf("dial ledger: %w", ports.ErrLedgerTransport)
	}
	ref := fmt.Sprintf("0xtx%d", l.submits)
	l.statuses[ref] = domain.LedgerTxPending
	return ref, nil
}

func (l *fakeLedger) Status(_ context.Context, txRef string) (domain.LedgerTxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statuses[txRef], nil
}

func (l *fakeLedger) setStatus(txRef string, s domain.LedgerTxStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses[txRef] = s
}

func (l *fakeLedger) submitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits
}

type recordingListener struct {
	mu        sync.Mutex
	submitted []domain.AnchorRecord
	failed    []domain.AnchorRecord
}

func (r *recordingListener) AnchorSubmitted(rec domain.AnchorRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, rec)
}

func (r *recordingListener) AnchorFailed(rec domain.AnchorRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, rec)
}

func (r *recordingListener) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted), len(r.failed)
}

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		SubmitTimeout:  time.Second,
		Workers:        2,
		QueueSize:      16,
	}
}

func issuanceRequest(creditID string) domain.AnchorRequest {
	return domain.AnchorRequest{
		TransitionID: domain.BuildIssuanceTransitionID(creditID),
		Kind:         domain.AnchorKindCreditIssuance,
		Entity:       domain.CreditRef(creditID),
		Payload:      []byte(`{"credit_id":"` + creditID + `"}`),
	}
}

func waitForStatus(t *testing.T, c *Coordinator, id string, status domain.AnchorStatus) domain.AnchorRecord {
	t.Helper()
	var rec domain.AnchorRecord
	require.Eventually(t, func() bool {
		var ok bool
		rec, ok = c.Get(id)
		return ok && rec.Status == status
	}, 2*time.Second, 5*time.Millisecond, "record %s never reached %s", id, status)
	return rec
}

func TestCoordinator_EnqueueIsIdempotent(t *testing.T) {
	c := New(testConfig(), newFakeLedger(), nil, nil, zerolog.Nop())
	req := issuanceRequest("c-1")

	first, err := c.Enqueue(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Enqueue(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.AnchorStatusQueued, first.Status)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Len(t, c.List(), 1)
	assert.Equal(t, 1, c.Counts()[domain.AnchorStatusQueued])
}

func TestCoordinator_EnqueueRequiresTransitionID(t *testing.T) {
	c := New(testConfig(), newFakeLedger(), nil, nil, zerolog.Nop())

	_, err := c.Enqueue(context.Background(), domain.AnchorRequest{})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidSpec))
}

func TestCoordinator_SubmitThenConfirm(t *testing.T) {
	defer goleak.VerifyNone(t)

	ledger := newFakeLedger()
	listener := &recordingListener{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := New(testConfig(), ledger, nil, metrics, zerolog.Nop())
	c.SetListener(listener)
	c.Start(context.Background())

	id := domain.BuildIssuanceTransitionID("c-1")
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-1"))
	require.NoError(t, err)

	rec := waitForStatus(t, c, id, domain.AnchorStatusSubmitted)
	assert.Equal(t, "0xtx1", rec.TxRef)
	assert.Equal(t, 1, rec.Attempts)

	ledger.setStatus(rec.TxRef, domain.LedgerTxConfirmed)
	rec = waitForStatus(t, c, id, domain.AnchorStatusConfirmed)
	assert.NotNil(t, rec.ConfirmedAt)

	submitted, failed := listener.counts()
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 0, failed)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Confirmed))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Records.WithLabelValues("confirmed")))

	require.NoError(t, c.Shutdown(context.Background()))
}

func TestCoordinator_RetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	ledger := newFakeLedger()
	ledger.failFirst = 2
	c := New(testConfig(), ledger, nil, nil, zerolog.Nop())
	c.Start(context.Background())

	id := domain.BuildIssuanceTransitionID("c-2")
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-2"))
	require.NoError(t, err)

	rec := waitForStatus(t, c, id, domain.AnchorStatusSubmitted)
	assert.Equal(t, 3, rec.Attempts)
	assert.Empty(t, rec.LastError)

	require.NoError(t, c.Shutdown(context.Background()))
}

func TestCoordinator_ExhaustsAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	ledger.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return("", fmt.Errorf("connection reset: %w", ports.ErrLedgerTransport)).
		Times(3)

	listener := &recordingListener{}
	metrics := NewMetrics(prometheus.NewRegistry())
	c := New(testConfig(), ledger, nil, metrics, zerolog.Nop())
	c.SetListener(listener)
	c.Start(context.Background())

	id := domain.BuildApprovalTransitionID("r-1")
	_, err := c.Enqueue(context.Background(), domain.AnchorRequest{
		TransitionID: id,
		Kind:         domain.AnchorKindReportApproval,
		Entity:       domain.ReportRef("r-1"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, failed := listener.counts()
		return failed == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.AnchorStatusFailed, rec.Status)
	assert.True(t, rec.Exhausted)
	assert.Equal(t, 3, rec.Attempts)
	assert.Contains(t, rec.LastError, "connection reset")
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.AttemptErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Exhausted))

	// The sweep must not pick the exhausted record up again.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestCoordinator_NonTransportErrorIsNotRetried(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failFirst = 10
	ledger.failWith = errors.New("payload rejected: malformed")
	listener := &recordingListener{}
	c := New(testConfig(), ledger, nil, nil, zerolog.Nop())
	c.SetListener(listener)
	c.Start(context.Background())
	defer c.Shutdown(context.Background())

	id := domain.BuildIssuanceTransitionID("c-3")
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-3"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, _ := c.Get(id)
		return rec.Exhausted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ledger.submitCount())
}

func TestCoordinator_LedgerDroppedTransactionIsResubmitted(t *testing.T) {
	ledger := newFakeLedger()
	c := New(testConfig(), ledger, nil, nil, zerolog.Nop())
	c.Start(context.Background())
	defer c.Shutdown(context.Background())

	id := domain.BuildIssuanceTransitionID("c-4")
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-4"))
	require.NoError(t, err)

	rec := waitForStatus(t, c, id, domain.AnchorStatusSubmitted)
	require.Equal(t, "0xtx1", rec.TxRef)
	ledger.setStatus("0xtx1", domain.LedgerTxFailed)

	require.Eventually(t, func() bool {
		rec, _ := c.Get(id)
		return rec.Status == domain.AnchorStatusSubmitted && rec.TxRef == "0xtx2"
	}, 2*time.Second, 5*time.Millisecond)

	ledger.setStatus("0xtx2", domain.LedgerTxConfirmed)
	rec = waitForStatus(t, c, id, domain.AnchorStatusConfirmed)
	assert.Equal(t, 2, rec.Attempts)
}

func TestCoordinator_SingleFlightPerTransition(t *testing.T) {
	ledger := newFakeLedger()
	ledger.block = make(chan struct{})
	c := New(testConfig(), ledger, nil, nil, zerolog.Nop())

	id := domain.BuildIssuanceTransitionID("c-5")
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-5"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.process(context.Background(), id)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(ledger.block)
	wg.Wait()

	assert.Equal(t, 1, ledger.submitCount())
	rec, _ := c.Get(id)
	assert.Equal(t, domain.AnchorStatusSubmitted, rec.Status)
}

func TestCoordinator_RetryRearmsExhaustedRecord(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failFirst = 3
	listener := &recordingListener{}
	c := New(testConfig(), ledger, nil, nil, zerolog.Nop())
	c.SetListener(listener)
	c.Start(context.Background())
	defer c.Shutdown(context.Background())

	id := domain.BuildIssuanceTransitionID("c-6")
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-6"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, _ := c.Get(id)
		return rec.Exhausted
	}, 2*time.Second, 5*time.Millisecond)

	rec, err := c.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts)
	assert.False(t, rec.Exhausted)

	rec = waitForStatus(t, c, id, domain.AnchorStatusSubmitted)
	assert.Equal(t, 1, rec.Attempts)

	_, err = c.Retry(context.Background(), id)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidTransition))
	_, err = c.Retry(context.Background(), "credit:missing:issue")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestCoordinator_RetryLeavesRecordInBackoffAlone(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failFirst = 1
	cfg := testConfig()
	cfg.InitialBackoff = 10 * time.Second
	cfg.MaxBackoff = 10 * time.Second
	c := New(cfg, ledger, nil, nil, zerolog.Nop())
	c.Start(context.Background())
	defer c.Shutdown(context.Background())

	id := domain.BuildIssuanceTransitionID("c-6b")
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-6b"))
	require.NoError(t, err)

	rec := waitForStatus(t, c, id, domain.AnchorStatusFailed)
	assert.False(t, rec.Exhausted)

	_, err = c.Retry(context.Background(), id)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidTransition), "got %v", err)

	rec, _ = c.Get(id)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 1, ledger.submitCount())
}

func TestCoordinator_EnqueuePersistsDurably(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAnchorRepository(ctrl)
	c := New(testConfig(), newFakeLedger(), repo, nil, zerolog.Nop())

	repo.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *domain.AnchorRecord) (bool, error) {
			assert.Equal(t, domain.AnchorStatusQueued, rec.Status)
			return true, nil
		})

	_, err := c.Enqueue(context.Background(), issuanceRequest("c-7"))
	require.NoError(t, err)
}

func TestCoordinator_EnqueueAdoptsExistingDurableRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAnchorRepository(ctrl)
	c := New(testConfig(), newFakeLedger(), repo, nil, zerolog.Nop())

	id := domain.BuildIssuanceTransitionID("c-8")
	repo.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(false, nil)
	repo.EXPECT().Get(gomock.Any(), id).Return(&domain.AnchorRecord{
		TransitionID: id,
		Status:       domain.AnchorStatusConfirmed,
		TxRef:        "0xold",
		Attempts:     1,
	}, nil)

	rec, err := c.Enqueue(context.Background(), issuanceRequest("c-8"))
	require.NoError(t, err)
	assert.Equal(t, domain.AnchorStatusConfirmed, rec.Status)
	assert.Equal(t, "0xold", rec.TxRef)
}

func TestCoordinator_EnqueueRepoFailureKeepsRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAnchorRepository(ctrl)
	c := New(testConfig(), newFakeLedger(), repo, nil, zerolog.Nop())

	repo.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(false, errors.New("pool closed"))

	_, err := c.Enqueue(context.Background(), issuanceRequest("c-9"))
	require.Error(t, err)

	_, ok := c.Get(domain.BuildIssuanceTransitionID("c-9"))
	assert.True(t, ok)
}

func TestCoordinator_ShutdownFlushesRecords(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAnchorRepository(ctrl)
	ledger := newFakeLedger()
	ledger.block = make(chan struct{}) // never released: submissions hang until cancelled

	cfg := testConfig()
	cfg.Workers = 1
	c := New(cfg, ledger, repo, nil, zerolog.Nop())

	repo.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	var flushed []domain.AnchorRecord
	repo.EXPECT().SaveAll(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, recs []domain.AnchorRecord) error {
			flushed = recs
			return nil
		})

	c.Start(context.Background())
	_, err := c.Enqueue(context.Background(), issuanceRequest("c-10"))
	require.NoError(t, err)
	_, err = c.Enqueue(context.Background(), issuanceRequest("c-11"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	require.Len(t, flushed, 2)
	for _, rec := range flushed {
		assert.False(t, rec.Exhausted, "cancelled work must stay resumable")
		assert.Contains(t, []domain.AnchorStatus{domain.AnchorStatusQueued, domain.AnchorStatusFailed}, rec.Status)
	}
}

func TestCoordinator_RecoverResumesRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAnchorRepository(ctrl)
	ledger := newFakeLedger()
	c := New(testConfig(), ledger, repo, nil, zerolog.Nop())

	queuedID := domain.BuildIssuanceTransitionID("c-12")
	submittedID := domain.BuildApprovalTransitionID("r-12")
	ledger.setStatus("0xprev", domain.LedgerTxConfirmed)

	repo.EXPECT().ListResumable(gomock.Any()).Return([]domain.AnchorRecord{
		{TransitionID: queuedID, Status: domain.AnchorStatusQueued, Entity: domain.CreditRef("c-12")},
		{TransitionID: submittedID, Status: domain.AnchorStatusSubmitted, TxRef: "0xprev", Attempts: 1, Entity: domain.ReportRef("r-12")},
	}, nil)
	repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	n, err := c.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c.Start(context.Background())
	defer c.Shutdown(context.Background())

	waitForStatus(t, c, queuedID, domain.AnchorStatusSubmitted)
	waitForStatus(t, c, submittedID, domain.AnchorStatusConfirmed)
}

func TestCoordinator_QueueOverflowIsSwept(t *testing.T) {
	ledger := newFakeLedger()
	cfg := testConfig()
	cfg.QueueSize = 1
	c := New(cfg, ledger, nil, nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := c.Enqueue(context.Background(), issuanceRequest(fmt.Sprintf("q-%d", i)))
		require.NoError(t, err)
	}

	c.Start(context.Background())
	defer c.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		return c.Counts()[domain.AnchorStatusSubmitted] == 5
	}, 2*time.Second, 5*time.Millisecond)
}
