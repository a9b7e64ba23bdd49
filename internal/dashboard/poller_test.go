package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risklock/livesync/internal/events"
	model "github.com/risklock/livesync/internal/model/dashboard"
)

type fakeAPI struct {
	calls  atomic.Int32
	status model.SyncStatus
	fail   atomic.Bool
}

func (f *fakeAPI) Overview(context.Context) (model.Overview, error) {
	n := f.calls.Add(1)
	if f.fail.Load() {
		return model.Overview{}, errors.New("bad gateway")
	}
	return model.Overview{
		Account: model.Account{Balance: decimal.NewFromInt(int64(n))},
		Sync:    model.Sync{Status: f.status},
	}, nil
}

func TestPollerBadge(t *testing.T) {
	api := &fakeAPI{status: model.SyncDegraded}
	p := NewPoller(api, time.Hour, nil)
	assert.Equal(t, BadgeLoading, p.Badge())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		_, ok := p.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.SyncDegraded, p.Badge())

	clock := time.Now().Add(4 * time.Hour)
	p.now = func() time.Time { return clock }
	assert.Equal(t, model.SyncStale, p.Badge())
}

func TestPollerKeepsLastSnapshotOnError(t *testing.T) {
	api := &fakeAPI{status: model.SyncLive}
	bus := events.NewBus()
	var transient atomic.Int32
	bus.Subscribe(func(events.Event) { transient.Add(1) }, events.TransientError)

	p := NewPoller(api, 10*time.Millisecond, bus)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		_, ok := p.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	api.fail.Store(true)
	require.Eventually(t, func() bool { return p.Err() != nil }, time.Second, 5*time.Millisecond)

	overview, ok := p.Latest()
	assert.True(t, ok)
	assert.True(t, overview.Account.Balance.IsPositive())
	assert.Greater(t, transient.Load(), int32(0))

	api.fail.Store(false)
	require.Eventually(t, func() bool { return p.Err() == nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.SyncLive, p.Badge())
}

func TestPollerStop(t *testing.T) {
	api := &fakeAPI{status: model.SyncLive}
	p := NewPoller(api, 5*time.Millisecond, nil)
	require.NoError(t, p.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	calls := api.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, api.calls.Load(), "fetches continued after Stop")
}

func TestPollerStopsOnAuthExpired(t *testing.T) {
	api := &fakeAPI{status: model.SyncLive}
	bus := events.NewBus()
	p := NewPoller(api, 5*time.Millisecond, bus)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool { return api.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	bus.Publish(events.Event{Kind: events.AuthExpired, Source: "api"})

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("poller still running after AuthExpired")
	}

	calls := api.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, api.calls.Load(), "fetches continued after AuthExpired")
}
