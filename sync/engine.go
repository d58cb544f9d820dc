// Package sync implements the offline-first synchronization engine: it
// owns the connectivity state machine, applies every domain write locally
// first, pushes confirmed writes to the remote gateway in the background
// and replays the pending-operation queue when connectivity returns.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	stdSync "sync"
	"time"

	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/gateway"
	"github.com/beautystore/beautypos/localstore"
	"github.com/beautystore/beautypos/logging"
	"github.com/cenkalti/backoff/v4"
)

// State is the connectivity state of the engine.
type State string

const (
	StateOffline       State = "offline"
	StateOnlineIdle    State = "online-idle"
	StateOnlineSyncing State = "online-syncing"
)

// Status is the advisory sync indicator surfaced to the UI. It never
// blocks and never affects the outcome of a user-visible operation.
type Status struct {
	Online       bool      `json:"online"`
	State        State     `json:"state"`
	PendingCount int       `json:"pendingCount"`
	LastSyncAt   time.Time `json:"lastSyncAt"`
}

// Operation is one domain write entering the engine.
type Operation struct {
	Collection domain.Collection
	Kind       domain.OperationKind

	// RecordID identifies the record; always set.
	RecordID string

	// Body is the JSON-encoded record for add/update; nil for delete.
	Body json.RawMessage

	// LocalOnly marks a write with no remote counterpart, such as a sale
	// cancellation. It is applied to the local store and never pushed or
	// queued.
	LocalOnly bool
}

// Options configures the engine.
type Options struct {
	// SyncInterval is the cadence of the background queue drain.
	// Zero disables automatic draining.
	SyncInterval time.Duration

	// RemoteTimeout bounds every remote call the engine issues. A call
	// exceeding it is treated as a network failure.
	RemoteTimeout time.Duration

	// Metrics receives observability hooks; nil means no-op.
	Metrics MetricsCollector

	// Logger overrides the default component logger.
	Logger *logging.Logger
}

func (o *Options) setDefaults() {
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = 10 * time.Second
	}
	if o.Metrics == nil {
		o.Metrics = &NoOpMetricsCollector{}
	}
	if o.Logger == nil {
		o.Logger = logging.WithComponent(logging.Component("sync-engine"))
	}
}

// Result reports what one sync pass did.
type Result struct {
	Replayed       int
	Failed         int
	PulledProducts int
	PulledSales    int
	Errors         []error
	StartTime      time.Time
	Duration       time.Duration
}

// Engine orchestrates reads and writes across the local store, the remote
// gateway and the pending queue. It is the sole writer of the local store,
// the only component that mutates sync states and the only producer and
// consumer of pending operations.
type Engine struct {
	store  localstore.Store
	queue  localstore.Queue
	remote gateway.Caller
	opts   Options
	logger *logging.Logger

	mu          stdSync.RWMutex
	state       State
	lastSyncAt  time.Time
	closed      bool
	autoStop    chan struct{}
	subscribers []func(*Result)

	// drainMu serializes drain passes; retry pacing after failed passes
	// follows the backoff policy.
	drainMu     stdSync.Mutex
	retryPolicy *backoff.ExponentialBackOff
	nextDrainAt time.Time

	// inflight tracks background remote pushes so Close (and tests) can
	// wait for them.
	inflight stdSync.WaitGroup

	locks keyedMutex
}

// New creates an engine in the Offline state; Start probes connectivity.
func New(store localstore.Store, queue localstore.Queue, remote gateway.Caller, opts Options) *Engine {
	opts.setDefaults()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Second
	policy.MaxInterval = 5 * time.Minute
	policy.MaxElapsedTime = 0 // never give up on the queue

	return &Engine{
		store:       store,
		queue:       queue,
		remote:      remote,
		opts:        opts,
		logger:      opts.Logger,
		state:       StateOffline,
		retryPolicy: policy,
	}
}

// Start probes the remote once to pick the initial state and, when a sync
// interval is configured, begins automatic background draining.
func (e *Engine) Start(ctx context.Context) error {
	if e.Probe(ctx) {
		e.logger.Info("starting online")
	} else {
		e.logger.Info("starting offline, queued work will wait for connectivity")
	}

	if e.opts.SyncInterval > 0 {
		if err := e.StartAutoSync(ctx); err != nil {
			return err
		}
	}
	return nil
}

// State returns the current connectivity state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Status reports the advisory sync indicator.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	count, err := e.queue.Count(ctx)
	if err != nil {
		return Status{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Online:       e.state != StateOffline,
		State:        e.state,
		PendingCount: count,
		LastSyncAt:   e.lastSyncAt,
	}, nil
}

// SetConnectivity feeds platform connectivity events into the state
// machine. Coming online with queued work triggers a background drain.
func (e *Engine) SetConnectivity(online bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	previous := e.state
	if online && previous == StateOffline {
		e.state = StateOnlineIdle
	} else if !online {
		e.state = StateOffline
	}
	current := e.state
	e.mu.Unlock()

	if current != previous {
		e.logger.Info("connectivity changed",
			slog.String("from", string(previous)), slog.String("to", string(current)))
		e.opts.Metrics.RecordStateChange(current)
	}

	if online && previous == StateOffline {
		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*e.opts.RemoteTimeout)
			defer cancel()
			if count, err := e.queue.Count(ctx); err == nil && count > 0 {
				e.Drain(ctx)
			}
		}()
	}
}

// Probe checks the remote with a ping action and adjusts the state
// machine accordingly. Returns whether the remote answered.
func (e *Engine) Probe(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()

	_, err := e.remote.Call(callCtx, gateway.ActionPing, nil)
	if err != nil && posErrors.IsKind(err, posErrors.KindNetwork) {
		e.SetConnectivity(false)
		return false
	}
	// A remote or parse error still proves the transport is reachable.
	e.SetConnectivity(true)
	return true
}

// Apply performs one domain write: the local store is written
// synchronously — its outcome is the operation's outcome as observed by
// the caller — and the remote round-trip happens in the background or is
// queued for later replay. Remote failures never surface here.
func (e *Engine) Apply(ctx context.Context, op Operation) error {
	return e.ApplyBatch(ctx, []Operation{op})
}

// ApplyBatch applies several writes as one atomic local unit. A sale and
// its paired stock decrements go through here so they never partially
// apply.
func (e *Engine) ApplyBatch(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}

	var puts []localstore.Record
	now := time.Now().UTC()
	for _, op := range ops {
		switch op.Kind {
		case domain.OpAdd, domain.OpUpdate:
			puts = append(puts, localstore.Record{
				Collection: op.Collection,
				ID:         op.RecordID,
				Body:       op.Body,
				SyncState:  domain.SyncPending,
				UpdatedAt:  now,
			})
		case domain.OpDelete:
			// Deletes are applied individually below.
		default:
			return posErrors.NewValidationError(posErrors.OpApply,
				fmt.Errorf("unknown operation kind %q", op.Kind))
		}
	}

	if err := e.store.PutBatch(ctx, puts); err != nil {
		return err
	}
	for _, op := range ops {
		if op.Kind == domain.OpDelete {
			if _, err := e.store.Remove(ctx, op.Collection, op.RecordID); err != nil {
				return err
			}
		}
	}

	var remoteOps []Operation
	for _, op := range ops {
		e.opts.Metrics.RecordApply(op.Collection, op.Kind)
		if !op.LocalOnly {
			remoteOps = append(remoteOps, op)
		}
	}
	if len(remoteOps) == 0 {
		return nil
	}

	if e.State() == StateOffline {
		for _, op := range remoteOps {
			if err := e.enqueue(ctx, op, 0); err != nil {
				return err
			}
		}
		return nil
	}

	queuedAhead, err := e.queuedRecords(ctx)
	if err != nil {
		return err
	}

	// An operation whose record already has a queued predecessor must
	// line up behind it; pushing it directly would let the remote see the
	// newer write before the older one replays.
	var pushOps []Operation
	for _, op := range remoteOps {
		if queuedAhead[recordKey(op.Collection, op.RecordID)] {
			if err := e.enqueue(ctx, op, 0); err != nil {
				return err
			}
			continue
		}
		pushOps = append(pushOps, op)
	}

	if len(pushOps) > 0 {
		e.inflight.Add(1)
		go e.pushRemote(pushOps)
	}
	return nil
}

func (e *Engine) queuedRecords(ctx context.Context) (map[string]bool, error) {
	queued, err := e.queue.PeekAll(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(queued))
	for _, op := range queued {
		keys[recordKey(op.Collection, op.RecordID)] = true
	}
	return keys, nil
}

func recordKey(collection domain.Collection, id string) string {
	return string(collection) + "/" + id
}

// pushRemote attempts the background remote round-trip for already-applied
// local writes. Failures degrade to queued pending operations; they are
// invisible to the caller whose local write already succeeded.
func (e *Engine) pushRemote(ops []Operation) {
	defer e.inflight.Done()

	for _, op := range ops {
		if e.State() == StateOffline {
			// A network failure earlier in the batch took us offline;
			// the rest was never attempted.
			e.enqueueLogged(op, 0)
			continue
		}

		action, err := gateway.ActionFor(op.Collection, op.Kind)
		if err != nil {
			e.logger.LogError(context.Background(), err, "operation has no remote action")
			continue
		}

		callCtx, cancel := context.WithTimeout(context.Background(), e.opts.RemoteTimeout)
		_, err = e.remote.Call(callCtx, action, remotePayload(op))
		cancel()

		switch {
		case err == nil:
			if op.Kind != domain.OpDelete {
				e.markSynced(op)
			}
			e.opts.Metrics.RecordReplay(true)
		case posErrors.IsKind(err, posErrors.KindNetwork):
			e.logger.LogError(context.Background(), err, "remote unreachable, going offline",
				slog.String("action", string(action)))
			e.SetConnectivity(false)
			e.enqueueLogged(op, 1)
			e.opts.Metrics.RecordReplay(false)
		default:
			// Remote or parse fault: transient, queue for retry. The
			// remote's failure must never cause silent data loss.
			e.logger.LogError(context.Background(), err, "remote rejected write, queued for retry",
				slog.String("action", string(action)))
			e.enqueueLogged(op, 1)
			e.opts.Metrics.RecordReplay(false)
		}
	}
}

func (e *Engine) markSynced(op Operation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SetSyncState(ctx, op.Collection, op.RecordID, domain.SyncSynced); err != nil {
		e.logger.LogError(ctx, err, "failed to mark record synced",
			slog.String("record_id", op.RecordID))
	}
}

func (e *Engine) enqueue(ctx context.Context, op Operation, attempts int) error {
	pending := &domain.PendingOperation{
		Collection:   op.Collection,
		Kind:         op.Kind,
		RecordID:     op.RecordID,
		Payload:      remotePayloadJSON(op),
		EnqueuedAt:   time.Now().UTC(),
		AttemptCount: attempts,
	}
	return e.queue.Enqueue(ctx, pending)
}

func (e *Engine) enqueueLogged(op Operation, attempts int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.enqueue(ctx, op, attempts); err != nil {
		e.logger.LogError(ctx, err, "failed to enqueue pending operation",
			slog.String("record_id", op.RecordID))
	}
}

// remotePayload is what goes over the wire: the record body for
// add/update, the bare id for delete.
func remotePayload(op Operation) interface{} {
	if op.Kind == domain.OpDelete {
		return map[string]string{"id": op.RecordID}
	}
	return json.RawMessage(op.Body)
}

func remotePayloadJSON(op Operation) json.RawMessage {
	if op.Kind == domain.OpDelete {
		payload, _ := json.Marshal(map[string]string{"id": op.RecordID})
		return payload
	}
	return op.Body
}

// LockProducts serializes stock mutations for the given product ids.
// Locks are acquired in sorted order so two overlapping sales cannot
// deadlock. The returned function releases them.
func (e *Engine) LockProducts(ids ...string) func() {
	return e.locks.LockAll(ids)
}

// Subscribe registers a handler invoked after every drain pass.
func (e *Engine) Subscribe(handler func(*Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, handler)
}

func (e *Engine) notifySubscribers(result *Result) {
	e.mu.RLock()
	subscribers := make([]func(*Result), len(e.subscribers))
	copy(subscribers, e.subscribers)
	e.mu.RUnlock()

	for _, handler := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("subscriber panicked", slog.Any("panic", r))
				}
			}()
			handler(result)
		}()
	}
}

// StartAutoSync begins periodic background draining.
func (e *Engine) StartAutoSync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("sync engine is closed")
	}
	if e.opts.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if e.autoStop != nil {
		return fmt.Errorf("auto sync is already running")
	}

	e.autoStop = make(chan struct{})
	stop := e.autoStop

	go func() {
		ticker := time.NewTicker(e.opts.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				e.autoTick()
			}
		}
	}()

	return nil
}

func (e *Engine) autoTick() {
	e.drainMu.Lock()
	waiting := time.Now().Before(e.nextDrainAt)
	e.drainMu.Unlock()
	if waiting {
		return
	}

	if e.State() != StateOnlineIdle {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*e.opts.RemoteTimeout)
	defer cancel()

	count, err := e.queue.Count(ctx)
	if err != nil || count == 0 {
		return
	}
	e.Drain(ctx)
}

// StopAutoSync stops periodic draining.
func (e *Engine) StopAutoSync() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.autoStop == nil {
		return fmt.Errorf("auto sync is not running")
	}
	close(e.autoStop)
	e.autoStop = nil
	return nil
}

// Wait blocks until every in-flight background remote push has settled.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Close shuts the engine down, waiting for in-flight pushes.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.autoStop != nil {
		close(e.autoStop)
		e.autoStop = nil
	}
	e.mu.Unlock()

	e.inflight.Wait()
	return nil
}
