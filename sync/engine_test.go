package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdSync "sync"
	"testing"
	"time"

	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/gateway"
	"github.com/beautystore/beautypos/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote is a scripted gateway.Caller. Without a respond function it
// answers every call with a bare success envelope.
type fakeRemote struct {
	mu      stdSync.Mutex
	calls   []gateway.Action
	respond func(action gateway.Action, payload interface{}) (*gateway.Response, error)
}

func (f *fakeRemote) Call(ctx context.Context, action gateway.Action, payload interface{}) (*gateway.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, action)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(action, payload)
	}
	return &gateway.Response{Success: true}, nil
}

func (f *fakeRemote) actions() []gateway.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.Action, len(f.calls))
	copy(out, f.calls)
	return out
}

func networkDown(action gateway.Action, _ interface{}) (*gateway.Response, error) {
	return nil, posErrors.NewNetworkError(posErrors.OpCall, fmt.Errorf("%s: connection refused", action))
}

func newTestEngine(t *testing.T, remote gateway.Caller) (*Engine, *localstore.MemoryStore) {
	t.Helper()
	store := localstore.NewMemoryStore()
	engine := New(store, store, remote, Options{RemoteTimeout: time.Second})
	t.Cleanup(func() { engine.Close() })
	return engine, store
}

func productOp(kind domain.OperationKind, id string) Operation {
	body, _ := json.Marshal(map[string]string{"id": id, "name": "Batom Matte"})
	return Operation{
		Collection: domain.CollectionProducts,
		Kind:       kind,
		RecordID:   id,
		Body:       body,
	}
}

func TestApplyOfflineWritesLocallyAndQueues(t *testing.T) {
	remote := &fakeRemote{}
	engine, store := newTestEngine(t, remote)

	ctx := context.Background()
	require.Equal(t, StateOffline, engine.State(), "engine starts offline until probed")

	require.NoError(t, engine.Apply(ctx, productOp(domain.OpAdd, "PROD-1")))

	records, err := store.Get(ctx, domain.CollectionProducts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.SyncPending, records[0].SyncState)

	ops, err := store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "PROD-1", ops[0].RecordID)
	assert.Equal(t, 0, ops[0].AttemptCount, "never-attempted operations carry zero attempts")

	assert.Empty(t, remote.actions(), "offline writes must not touch the remote")
}

func TestApplyOnlineSuccessMarksSynced(t *testing.T) {
	remote := &fakeRemote{}
	engine, store := newTestEngine(t, remote)
	engine.SetConnectivity(true)
	engine.Wait()

	ctx := context.Background()
	require.NoError(t, engine.Apply(ctx, productOp(domain.OpAdd, "PROD-1")))
	engine.Wait()

	records, err := store.Get(ctx, domain.CollectionProducts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.SyncSynced, records[0].SyncState)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Contains(t, remote.actions(), gateway.ActionAddProduct)
}

func TestApplyOnlineRemoteRejectionQueuesForRetry(t *testing.T) {
	remote := &fakeRemote{respond: func(action gateway.Action, _ interface{}) (*gateway.Response, error) {
		return &gateway.Response{Success: false, Error: "quota exceeded"},
			posErrors.NewRemoteError(posErrors.OpCall, fmt.Errorf("quota exceeded"))
	}}
	engine, store := newTestEngine(t, remote)
	engine.SetConnectivity(true)
	engine.Wait()

	ctx := context.Background()
	// The local write already succeeded, so the caller sees no error.
	require.NoError(t, engine.Apply(ctx, productOp(domain.OpAdd, "PROD-1")))
	engine.Wait()

	records, err := store.Get(ctx, domain.CollectionProducts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.SyncPending, records[0].SyncState, "rejected write stays pending")

	ops, err := store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].AttemptCount, "the failed push counts as an attempt")

	assert.NotEqual(t, StateOffline, engine.State(), "a remote fault is not a connectivity loss")
}

func TestApplyOnlineNetworkFailureGoesOffline(t *testing.T) {
	remote := &fakeRemote{respond: networkDown}
	engine, store := newTestEngine(t, remote)
	engine.SetConnectivity(true)
	engine.Wait()

	ctx := context.Background()
	require.NoError(t, engine.Apply(ctx, productOp(domain.OpAdd, "PROD-1")))
	engine.Wait()

	assert.Equal(t, StateOffline, engine.State())

	ops, err := store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].AttemptCount)
}

func TestApplyBatchRemainingOpsQueuedAfterNetworkFailure(t *testing.T) {
	remote := &fakeRemote{respond: networkDown}
	engine, store := newTestEngine(t, remote)
	engine.SetConnectivity(true)
	engine.Wait()

	ctx := context.Background()
	err := engine.ApplyBatch(ctx, []Operation{
		productOp(domain.OpAdd, "PROD-1"),
		productOp(domain.OpAdd, "PROD-2"),
	})
	require.NoError(t, err)
	engine.Wait()

	ops, err := store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, 1, ops[0].AttemptCount, "first op failed over the wire")
	assert.Equal(t, 0, ops[1].AttemptCount, "second op was never attempted")
	assert.Len(t, remote.actions(), 1, "the batch stops pushing once offline")
}

func TestApplyLinesUpBehindQueuedOperationForSameRecord(t *testing.T) {
	remote := &fakeRemote{}
	engine, store := newTestEngine(t, remote)
	engine.SetConnectivity(true)
	engine.Wait()

	ctx := context.Background()

	// PROD-1 already has an unreplayed add waiting in the queue.
	addBody, _ := json.Marshal(map[string]string{"id": "PROD-1", "name": "Batom Matte"})
	require.NoError(t, store.Enqueue(ctx, &domain.PendingOperation{
		Collection: domain.CollectionProducts,
		Kind:       domain.OpAdd,
		RecordID:   "PROD-1",
		Payload:    addBody,
		EnqueuedAt: time.Now().UTC(),
	}))

	require.NoError(t, engine.Apply(ctx, productOp(domain.OpUpdate, "PROD-1")))
	require.NoError(t, engine.Apply(ctx, productOp(domain.OpAdd, "PROD-2")))
	engine.Wait()

	assert.Equal(t, []gateway.Action{gateway.ActionAddProduct}, remote.actions(),
		"only the unencumbered record is pushed directly")

	ops, err := store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2, "the update queues behind the add it depends on")
	assert.Equal(t, domain.OpAdd, ops[0].Kind)
	assert.Equal(t, domain.OpUpdate, ops[1].Kind)
	assert.Equal(t, "PROD-1", ops[1].RecordID)
	assert.Equal(t, 0, ops[1].AttemptCount, "never attempted, so zero attempts")
}

func TestProbeClassifiesReachability(t *testing.T) {
	tests := []struct {
		name       string
		respond    func(gateway.Action, interface{}) (*gateway.Response, error)
		wantOnline bool
	}{
		{
			name:       "healthy remote",
			respond:    nil,
			wantOnline: true,
		},
		{
			name: "remote fault still proves the transport",
			respond: func(gateway.Action, interface{}) (*gateway.Response, error) {
				return &gateway.Response{Success: false, Error: "script error"},
					posErrors.NewRemoteError(posErrors.OpCall, fmt.Errorf("script error"))
			},
			wantOnline: true,
		},
		{
			name:       "unreachable remote",
			respond:    networkDown,
			wantOnline: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{respond: tt.respond}
			engine, _ := newTestEngine(t, remote)

			online := engine.Probe(context.Background())
			assert.Equal(t, tt.wantOnline, online)
			if tt.wantOnline {
				assert.Equal(t, StateOnlineIdle, engine.State())
			} else {
				assert.Equal(t, StateOffline, engine.State())
			}
		})
	}
}

func TestStatusReportsPendingCount(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeRemote{})

	ctx := context.Background()
	require.NoError(t, engine.Apply(ctx, productOp(domain.OpAdd, "PROD-1")))
	require.NoError(t, engine.Apply(ctx, productOp(domain.OpUpdate, "PROD-1")))

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Online)
	assert.Equal(t, StateOffline, status.State)
	assert.Equal(t, 2, status.PendingCount)
	assert.True(t, status.LastSyncAt.IsZero())
}

func TestLockProductsOverlappingSalesDoNotDeadlock(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeRemote{})

	done := make(chan struct{})
	var wg stdSync.WaitGroup
	for i := 0; i < 2; i++ {
		ids := []string{"PROD-1", "PROD-2"}
		if i == 1 {
			ids = []string{"PROD-2", "PROD-1"}
		}
		wg.Add(1)
		go func(ids []string) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				unlock := engine.LockProducts(ids...)
				unlock()
			}
		}(ids)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("overlapping lock acquisition deadlocked")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeRemote{})
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
}
