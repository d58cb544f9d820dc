package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/gateway"
	"github.com/beautystore/beautypos/localstore"
)

// Drain replays the pending-operation queue against the remote store.
// Replay is FIFO per collection: a failed operation blocks the remainder
// of its own collection for this pass (so an Update is never replayed
// before the Add it depends on) but other collections continue. A network
// failure ends the pass and flips the engine offline.
func (e *Engine) Drain(ctx context.Context) *Result {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	result := &Result{StartTime: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartTime)
		e.opts.Metrics.RecordDrainDuration(result.Duration)
		e.notifySubscribers(result)
	}()

	if !e.enterSyncing() {
		return result
	}
	defer e.leaveSyncing()

	snapshot, err := e.queue.PeekAll(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	blocked := make(map[domain.Collection]bool)

	for i, op := range snapshot {
		if blocked[op.Collection] {
			continue
		}
		if e.State() == StateOffline {
			break
		}

		action, err := gateway.ActionFor(op.Collection, op.Kind)
		if err != nil {
			// Unreplayable garbage would wedge its collection forever;
			// drop it loudly.
			e.logger.LogError(ctx, err, "dropping unreplayable pending operation",
				slog.Int64("seq", op.Seq))
			if err := e.queue.Dequeue(ctx, op.Seq); err != nil {
				result.Errors = append(result.Errors, err)
			}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
		_, err = e.remote.Call(callCtx, action, json.RawMessage(op.Payload))
		cancel()

		if err == nil {
			if err := e.queue.Dequeue(ctx, op.Seq); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if op.Kind != domain.OpDelete && !laterOpPending(snapshot[i+1:], op) {
				e.markSynced(Operation{Collection: op.Collection, Kind: op.Kind, RecordID: op.RecordID})
			}
			result.Replayed++
			e.opts.Metrics.RecordReplay(true)
			continue
		}

		result.Failed++
		result.Errors = append(result.Errors, err)
		blocked[op.Collection] = true
		e.opts.Metrics.RecordReplay(false)

		if err := e.queue.IncrementAttempt(ctx, op.Seq); err != nil {
			result.Errors = append(result.Errors, err)
		}

		if posErrors.IsKind(err, posErrors.KindNetwork) {
			e.logger.LogError(ctx, err, "remote unreachable during drain, going offline")
			e.SetConnectivity(false)
			break
		}
	}

	e.settleDrain(result)
	return result
}

// laterOpPending reports whether another queued operation still targets
// the same record; marking such a record synced would misreport the newer
// local state as confirmed.
func laterOpPending(rest []domain.PendingOperation, op domain.PendingOperation) bool {
	for _, later := range rest {
		if later.Collection == op.Collection && later.RecordID == op.RecordID {
			return true
		}
	}
	return false
}

func (e *Engine) enterSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateOnlineIdle {
		return false
	}
	e.state = StateOnlineSyncing
	return true
}

func (e *Engine) leaveSyncing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateOnlineSyncing {
		e.state = StateOnlineIdle
	}
}

// settleDrain updates the retry pacing and last-sync bookkeeping once a
// pass completes. Callers hold drainMu.
func (e *Engine) settleDrain(result *Result) {
	if result.Failed == 0 && len(result.Errors) == 0 {
		e.retryPolicy.Reset()
		e.nextDrainAt = time.Time{}
		e.mu.Lock()
		e.lastSyncAt = time.Now().UTC()
		e.mu.Unlock()
		return
	}
	e.nextDrainAt = time.Now().Add(e.retryPolicy.NextBackOff())
}

// SyncNow is the explicit user-triggered sync: probe if offline, then
// drain whatever is queued.
func (e *Engine) SyncNow(ctx context.Context) *Result {
	if e.State() == StateOffline && !e.Probe(ctx) {
		return &Result{StartTime: time.Now(), Errors: []error{
			posErrors.NewNetworkError(posErrors.OpDrain, fmt.Errorf("remote unreachable")),
		}}
	}
	return e.Drain(ctx)
}

// LoadFromCloud pulls the remote collections and replaces the local copy
// of every record that has no outstanding pending operation and is not
// locally ahead of the remote. Local pending changes always survive the
// pull (local-wins for anything not yet confirmed).
func (e *Engine) LoadFromCloud(ctx context.Context) (*Result, error) {
	if e.State() == StateOffline {
		return nil, posErrors.NewNetworkError(posErrors.OpPull, fmt.Errorf("cannot pull while offline"))
	}

	result := &Result{StartTime: time.Now()}
	defer func() { result.Duration = time.Since(result.StartTime) }()

	pendingIDs, err := e.pendingRecordIDs(ctx)
	if err != nil {
		return result, err
	}

	pulledProducts, err := e.pullCollection(ctx, domain.CollectionProducts, gateway.ActionGetProducts, pendingIDs)
	if err != nil {
		return result, err
	}
	result.PulledProducts = pulledProducts

	pulledSales, err := e.pullCollection(ctx, domain.CollectionSales, gateway.ActionGetSales, pendingIDs)
	if err != nil {
		return result, err
	}
	result.PulledSales = pulledSales

	e.mu.Lock()
	e.lastSyncAt = time.Now().UTC()
	e.mu.Unlock()

	return result, nil
}

// pendingRecordIDs collects every record id that must survive a pull:
// ids with a queued operation plus ids whose local copy is still pending
// confirmation.
func (e *Engine) pendingRecordIDs(ctx context.Context) (map[string]bool, error) {
	pending := make(map[string]bool)

	ops, err := e.queue.PeekAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		pending[op.RecordID] = true
	}

	for _, collection := range []domain.Collection{domain.CollectionProducts, domain.CollectionSales} {
		records, err := e.store.Get(ctx, collection)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			if record.SyncState == domain.SyncPending {
				pending[record.ID] = true
			}
		}
	}

	return pending, nil
}

func (e *Engine) pullCollection(ctx context.Context, collection domain.Collection, action gateway.Action, pendingIDs map[string]bool) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()

	resp, err := e.remote.Call(callCtx, action, nil)
	if err != nil {
		if posErrors.IsKind(err, posErrors.KindNetwork) {
			e.SetConnectivity(false)
		}
		return 0, err
	}

	var items []json.RawMessage
	if err := resp.DecodeData(&items); err != nil {
		return 0, posErrors.NewParseError(posErrors.OpPull, err)
	}

	remoteIDs := make(map[string]bool, len(items))
	var replacements []localstore.Record
	pulled := 0

	for _, item := range items {
		var identity struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item, &identity); err != nil || identity.ID == "" {
			e.logger.Warn("skipping remote record without id", slog.String("collection", string(collection)))
			continue
		}
		remoteIDs[identity.ID] = true

		if pendingIDs[identity.ID] {
			continue // local change outranks the pulled snapshot
		}

		replacements = append(replacements, localstore.Record{
			Collection: collection,
			ID:         identity.ID,
			Body:       item,
			SyncState:  domain.SyncSynced,
			UpdatedAt:  time.Now().UTC(),
		})
		pulled++
	}

	if err := e.store.PutBatch(ctx, replacements); err != nil {
		return 0, err
	}

	// Confirmed local records the remote no longer has were deleted on
	// the other side; drop them.
	locals, err := e.store.Get(ctx, collection)
	if err != nil {
		return pulled, err
	}
	for _, record := range locals {
		if record.SyncState == domain.SyncSynced && !remoteIDs[record.ID] && !pendingIDs[record.ID] {
			if _, err := e.store.Remove(ctx, collection, record.ID); err != nil {
				return pulled, err
			}
		}
	}

	return pulled, nil
}
