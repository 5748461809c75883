package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
	"voucherPools/internal/ledger/ledgertest"
	"voucherPools/internal/model"
)

var (
	service   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	poolIndex = common.HexToAddress("0x0000000000000000000000000000000000000F00")
	ownerHex  = "0x00000000000000000000000000000000000000bb"
)

type memStore struct {
	mu    sync.Mutex
	err   error
	saved []model.PoolMetadata
}

func (m *memStore) InsertPool(_ context.Context, meta model.PoolMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, meta)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	err  error
	sent []Deployment
}

func (n *recordingNotifier) PoolDeployed(_ context.Context, d Deployment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, d)
	return n.err
}

func testArtifacts(t *testing.T) contracts.Artifacts {
	t.Helper()
	set, err := contracts.ABIs()
	require.NoError(t, err)
	code := []byte{0x60, 0x00}
	return contracts.Artifacts{
		TokenIndex: contracts.Artifact{Name: contracts.ArtifactTokenIndex, ABI: set.TokenIndex, Bytecode: code},
		Limiter:    contracts.Artifact{Name: contracts.ArtifactLimiter, ABI: set.Limiter, Bytecode: code},
		SwapPool:   contracts.Artifact{Name: contracts.ArtifactSwapPool, ABI: set.SwapPool, Bytecode: code},
		Quoter:     contracts.Artifact{Name: contracts.ArtifactQuoter, ABI: set.Quoter, Bytecode: code},
	}
}

func testRequest() Request {
	return Request{
		Name:        "Market Pool",
		Symbol:      "MKT",
		Decimals:    6,
		Description: "weekly market",
		Tags:        []string{"food", " food ", "", "market"},
		Owner:       ownerHex,
	}
}

func newSaga(t *testing.T, fake *ledgertest.Fake, store *memStore, notifier Notifier) *Saga {
	t.Helper()
	saga, err := NewSaga(fake, testArtifacts(t), store, Options{PoolIndex: poolIndex, Notifier: notifier})
	require.NoError(t, err)
	return saga
}

func collect(saga *Saga, req Request) ([]model.ProgressEvent, common.Address, error) {
	var events []model.ProgressEvent
	pool, err := saga.Run(context.Background(), req, func(ev model.ProgressEvent) {
		events = append(events, ev)
	})
	return events, pool, err
}

func TestSagaSuccess(t *testing.T) {
	fake := ledgertest.New(service)
	store := &memStore{}
	notifier := &recordingNotifier{}
	saga := newSaga(t, fake, store, notifier)

	events, pool, err := collect(saga, testRequest())
	require.NoError(t, err)
	saga.Wait()

	require.Len(t, events, 10)
	for _, ev := range events[:9] {
		assert.Equal(t, model.StatusLoading, ev.Status)
	}
	last := events[9]
	assert.Equal(t, model.StatusSuccess, last.Status)
	assert.Equal(t, pool.Hex(), last.Address)
	assert.NotEmpty(t, last.Address)

	assert.Equal(t, []string{
		"deploy:TokenIndex",
		"write:addWriter", "wait",
		"deploy:Limiter",
		"deploy:SwapPool",
		"deploy:PriceIndexQuoter",
		"write:setQuoter", "wait",
		"write:add", "wait",
		"write:transferOwnership", "wait",
		"write:transferOwnership", "wait",
		"write:transferOwnership", "wait",
		"write:transferOwnership", "wait",
	}, fake.OpLog())

	registry, limiter, poolAddr, quoter := fake.Deploys[0].Address, fake.Deploys[1].Address, fake.Deploys[2].Address, fake.Deploys[3].Address
	assert.Equal(t, poolAddr, pool)
	assert.Equal(t, []interface{}{"Market Pool", "MKT", uint8(6), registry, limiter}, fake.Deploys[2].Args)

	owner := common.HexToAddress(ownerHex)
	transfers := fake.Writes[3:]
	require.Len(t, transfers, 4)
	for i, want := range []common.Address{registry, limiter, poolAddr, quoter} {
		assert.Equal(t, want, transfers[i].Address)
		assert.Equal(t, []interface{}{owner}, transfers[i].Args)
	}
	assert.Equal(t, poolIndex, fake.Writes[2].Address)

	require.Len(t, store.saved, 1)
	assert.Equal(t, pool, store.saved[0].Address)
	assert.Equal(t, []string{"food", "market"}, store.saved[0].Tags)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, quoter, notifier.sent[0].Quoter)
	assert.NotEmpty(t, notifier.sent[0].RunID)
}

func TestSagaFailureAtEachStep(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		step   int
		inject func(f *ledgertest.Fake, s *memStore)
	}{
		{1, func(f *ledgertest.Fake, _ *memStore) {
			f.FailDeploy = func(name string) error { return failOn(name, contracts.ArtifactTokenIndex, boom) }
		}},
		{2, func(f *ledgertest.Fake, _ *memStore) {
			f.FailWrite = func(c ledger.Call) error { return failOn(c.Method, contracts.MethodAddWriter, boom) }
		}},
		{3, func(f *ledgertest.Fake, _ *memStore) {
			f.FailDeploy = func(name string) error { return failOn(name, contracts.ArtifactLimiter, boom) }
		}},
		{4, func(f *ledgertest.Fake, _ *memStore) {
			f.FailDeploy = func(name string) error { return failOn(name, contracts.ArtifactSwapPool, boom) }
		}},
		{5, func(f *ledgertest.Fake, _ *memStore) {
			f.FailDeploy = func(name string) error { return failOn(name, contracts.ArtifactQuoter, boom) }
		}},
		{6, func(f *ledgertest.Fake, _ *memStore) {
			f.FailWrite = func(c ledger.Call) error { return failOn(c.Method, contracts.MethodSetQuoter, boom) }
		}},
		{7, func(_ *ledgertest.Fake, s *memStore) { s.err = boom }},
		{8, func(f *ledgertest.Fake, _ *memStore) {
			f.FailWrite = func(c ledger.Call) error { return failOn(c.Method, contracts.MethodAdd, boom) }
		}},
		{9, func(f *ledgertest.Fake, _ *memStore) {
			f.FailWrite = func(c ledger.Call) error { return failOn(c.Method, contracts.MethodTransferOwnership, boom) }
		}},
	}

	for _, tc := range cases {
		fake := ledgertest.New(service)
		store := &memStore{}
		notifier := &recordingNotifier{}
		tc.inject(fake, store)
		saga := newSaga(t, fake, store, notifier)

		events, pool, err := collect(saga, testRequest())
		saga.Wait()

		var stepErr *model.StepError
		require.ErrorAs(t, err, &stepErr, "step %d", tc.step)
		assert.Equal(t, tc.step, stepErr.Step)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, tc.step >= 7, stepErr.Committed())
		assert.Equal(t, common.Address{}, pool)

		require.Len(t, events, tc.step+1, "step %d", tc.step)
		errorsSeen := 0
		for _, ev := range events {
			if ev.Status == model.StatusError {
				errorsSeen++
			}
			assert.NotEqual(t, model.StatusSuccess, ev.Status)
		}
		assert.Equal(t, 1, errorsSeen)
		assert.Equal(t, model.StatusError, events[len(events)-1].Status)
		assert.Empty(t, notifier.sent)
	}
}

func TestSagaRevertedWriteFails(t *testing.T) {
	fake := ledgertest.New(service)
	fake.Revert = func(common.Hash) bool { return true }
	saga := newSaga(t, fake, &memStore{}, nil)

	_, _, err := collect(saga, testRequest())
	var stepErr *model.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 2, stepErr.Step)
	assert.ErrorIs(t, err, model.ErrReverted)
}

func TestSagaNotificationFailureKeepsSuccess(t *testing.T) {
	fake := ledgertest.New(service)
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	saga := newSaga(t, fake, &memStore{}, notifier)

	events, pool, err := collect(saga, testRequest())
	saga.Wait()
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, pool)
	assert.Equal(t, model.StatusSuccess, events[len(events)-1].Status)
}

func TestSagaRejectsBadRequest(t *testing.T) {
	fake := ledgertest.New(service)
	saga := newSaga(t, fake, &memStore{}, nil)

	req := testRequest()
	req.Owner = "not-an-address"
	events, _, err := collect(saga, req)
	require.ErrorIs(t, err, model.ErrInvalidAddress)
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusError, events[0].Status)
	assert.Empty(t, fake.OpLog())
}

func TestSagaStream(t *testing.T) {
	fake := ledgertest.New(service)
	saga := newSaga(t, fake, &memStore{}, nil)

	var events []model.ProgressEvent
	for ev := range saga.Stream(context.Background(), testRequest()) {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Terminal())
	assert.Equal(t, model.StatusSuccess, events[len(events)-1].Status)
}

func TestSagaStreamKeepsTerminalEventAfterCancel(t *testing.T) {
	saga := newSaga(t, ledgertest.New(service), &memStore{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bad := testRequest()
	bad.Owner = "not an address"
	for i := 0; i < 50; i++ {
		var events []model.ProgressEvent
		for ev := range saga.Stream(ctx, bad) {
			events = append(events, ev)
		}
		require.Len(t, events, 1, "attempt %d", i)
		assert.Equal(t, model.StatusError, events[0].Status)
	}
}

func TestDeliverDropsOnlyWhenFullAndCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events := make(chan model.ProgressEvent, 1)

	deliver(ctx, events, model.ProgressEvent{Message: "first"})
	deliver(ctx, events, model.ProgressEvent{Message: "second"})

	require.Len(t, events, 1)
	assert.Equal(t, "first", (<-events).Message)
}

func TestNewSagaRequiresPoolIndex(t *testing.T) {
	_, err := NewSaga(ledgertest.New(service), testArtifacts(t), &memStore{}, Options{})
	assert.ErrorIs(t, err, model.ErrInvalidAddress)
}

func failOn(got, want string, err error) error {
	if got == want {
		return err
	}
	return nil
}
