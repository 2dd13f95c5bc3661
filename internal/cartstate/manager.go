package cartstate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// ErrClosed is returned by every operation once the manager is closed.
var ErrClosed = pkgerrors.New(pkgerrors.CodeClosed, "cart manager closed")

// FailurePolicy decides what happens to a mutation the cart service rejected.
type FailurePolicy string

// A failed add is always rolled back; the policy only governs failed
// quantity updates and removals.
const (
	// FailureKeep leaves the intent visible until the next applied refresh.
	FailureKeep FailurePolicy = "keep"
	// FailureRollback replays the confirmed base plus remaining mutations.
	FailureRollback FailurePolicy = "rollback"
)

const (
	discardMutationInFlight = "mutation_in_flight"
	discardNewerMutation    = "newer_mutation"
	discardSuperseded       = "superseded"

	refreshKey           = "refresh"
	maxReconcileAttempts = 3
)

type refreshOutcome struct {
	snapshot  Snapshot
	discarded bool
}

type ManagerParams struct {
	Remote        Remote
	Logger        *logger.Logger
	Metrics       *metrics.CartMetrics
	FailurePolicy FailurePolicy
	SessionID     string
}

type opState int

const (
	opInFlight opState = iota
	opConfirmed
	opFailed
)

type pendingOp struct {
	mutation Mutation
	state    opState
}

type event struct {
	snapshot *Snapshot
	notice   *Notice
}

type subscription struct {
	id       int
	observer Observer
}

// Manager owns the authoritative local cart view. It applies mutations
// synchronously, persists them to the Remote in the background and
// reconciles by refreshing once the remote has caught up.
type Manager struct {
	remote     Remote
	logg       *logger.Logger
	metrics    *metrics.CartMetrics
	policy     FailurePolicy
	sessionID  string
	instanceID string

	ctx    context.Context
	cancel context.CancelFunc

	refreshes singleflight.Group
	wake      chan struct{}

	mu           sync.Mutex
	closed       bool
	seq          uint64
	version      uint64
	base         []Line
	ops          []*pendingOp
	lines        []Line
	inflight     int
	fetchSeq     uint64
	appliedFetch uint64
	busy         int
	idle         chan struct{}
	events       []event
	observers    []subscription
	nextObserver int
}

// NewManager builds a manager with an empty cart. A nil Remote runs the
// manager in local-only mode.
func NewManager(params ManagerParams) (*Manager, error) {
	policy := FailurePolicy(strings.ToLower(strings.TrimSpace(string(params.FailurePolicy))))
	switch policy {
	case "":
		policy = FailureKeep
	case FailureKeep, FailureRollback:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown failure policy").
			WithDetails(map[string]any{"failure_policy": string(policy)})
	}

	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	sessionID := strings.TrimSpace(params.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		remote:     params.Remote,
		logg:       logg,
		metrics:    params.Metrics,
		policy:     policy,
		sessionID:  sessionID,
		instanceID: uuid.NewString(),
		ctx:        logg.WithCartSession(ctx, sessionID),
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
	}
	go m.dispatch()
	return m, nil
}

// SessionID identifies this cart to the cart service.
func (m *Manager) SessionID() string { return m.sessionID }

// Snapshot returns the current view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) AddItem(productID ProductID, name string, unitPrice decimal.Decimal) (Snapshot, error) {
	productID = ProductID(strings.TrimSpace(string(productID)))
	if productID == "" {
		return m.rejected(pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
	}
	if unitPrice.IsNegative() {
		return m.rejected(pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative").
			WithDetails(map[string]any{"product_id": productID.String(), "unit_price": unitPrice.String()}))
	}
	return m.commit(Mutation{
		Kind:      MutationAdd,
		ProductID: productID,
		Name:      name,
		UnitPrice: unitPrice,
	})
}

// AddLine is AddItem carrying the catalog image along.
func (m *Manager) AddLine(line Line) (Snapshot, error) {
	productID := ProductID(strings.TrimSpace(string(line.ProductID)))
	if productID == "" {
		return m.rejected(pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
	}
	if line.UnitPrice.IsNegative() {
		return m.rejected(pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative").
			WithDetails(map[string]any{"product_id": productID.String(), "unit_price": line.UnitPrice.String()}))
	}
	return m.commit(Mutation{
		Kind:      MutationAdd,
		ProductID: productID,
		Name:      line.Name,
		UnitPrice: line.UnitPrice,
		ImageURL:  line.ImageURL,
	})
}

// UpdateQuantity adjusts a line by delta, pruning it at zero. Unknown ids
// and a zero delta leave the cart untouched.
func (m *Manager) UpdateQuantity(productID ProductID, delta int) (Snapshot, error) {
	return m.commit(Mutation{
		Kind:      MutationUpdateQuantity,
		ProductID: ProductID(strings.TrimSpace(string(productID))),
		Delta:     delta,
	})
}

// RemoveItem deletes a line if present.
func (m *Manager) RemoveItem(productID ProductID) (Snapshot, error) {
	return m.commit(Mutation{
		Kind:      MutationRemove,
		ProductID: ProductID(strings.TrimSpace(string(productID))),
	})
}

func (m *Manager) rejected(err error) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	return m.snapshotLocked(), err
}

func (m *Manager) commit(mut Mutation) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}

	next := mut.apply(m.lines)
	if linesEqual(next, m.lines) {
		unknown := indexOf(m.lines, mut.ProductID) < 0
		snap := m.snapshotLocked()
		m.mu.Unlock()
		if unknown {
			ctx := m.logg.WithField(m.ctx, "product_id", mut.ProductID.String())
			m.logg.Debug(ctx, "cart mutation references unknown product; ignored")
		}
		return snap, nil
	}
	if err := ValidateLines(next); err != nil {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, err
	}

	m.seq++
	mut.Seq = m.seq
	mut.IdempotencyKey = fmt.Sprintf("%s:%s:%d", m.sessionID, m.instanceID, mut.Seq)
	m.lines = next
	m.version++
	snap := m.snapshotLocked()
	m.enqueueLocked(event{snapshot: &snap})
	m.metrics.IncMutation(string(mut.Kind))

	if m.remote != nil {
		op := &pendingOp{mutation: mut}
		m.ops = append(m.ops, op)
		m.inflight++
		m.acquireLocked()
		go m.persist(op)
	}
	m.mu.Unlock()
	return snap, nil
}

func (m *Manager) persist(op *pendingOp) {
	mut := op.mutation
	ctx := m.logg.WithFields(m.logg.WithSeq(m.ctx, mut.Seq), map[string]any{
		"mutation":   string(mut.Kind),
		"product_id": mut.ProductID.String(),
	})

	err := m.remote.Apply(ctx, mut)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.inflight--
	rolledBack := false
	if err != nil {
		op.state = opFailed
		if m.policy == FailureRollback || mut.Kind == MutationAdd {
			m.dropOpLocked(op)
			m.rebuildLocked()
			rolledBack = true
		}
		m.enqueueLocked(event{notice: &Notice{
			Kind:       NoticeNetworkFailure,
			Operation:  string(mut.Kind),
			Seq:        mut.Seq,
			ProductID:  mut.ProductID,
			RolledBack: rolledBack,
			Err:        err,
		}})
		m.metrics.IncRemoteFailure(string(mut.Kind))
	} else {
		op.state = opConfirmed
	}
	reconcile := m.inflight == 0 && m.hasConfirmedLocked()
	if reconcile {
		m.acquireLocked()
	}
	m.releaseLocked()
	m.mu.Unlock()

	if err != nil {
		m.logg.WarnErr(m.logg.WithField(ctx, "rolled_back", rolledBack), "cart.mutation.failed", err)
	}
	if reconcile {
		go m.reconcile()
	}
}

// reconcile refreshes after the last in-flight mutation settles. A joined
// fetch that started before that mutation is discarded, so it tries again
// while confirmed mutations are still waiting on a remote base.
func (m *Manager) reconcile() {
	defer m.releaseBusy()
	for attempt := 0; attempt < maxReconcileAttempts; attempt++ {
		res, err, _ := m.refreshes.Do(refreshKey, func() (any, error) {
			return m.refresh(m.ctx)
		})
		if err != nil {
			return
		}
		if outcome, _ := res.(refreshOutcome); !outcome.discarded {
			return
		}
		m.mu.Lock()
		pending := !m.closed && m.inflight == 0 && m.hasConfirmedLocked()
		m.mu.Unlock()
		if !pending {
			return
		}
	}
}

// RefreshFromSource replaces the local view with the remote cart. Concurrent
// calls share one fetch; ctx only bounds how long the caller waits.
func (m *Manager) RefreshFromSource(ctx context.Context) (Snapshot, error) {
	if m.remote == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return Snapshot{}, ErrClosed
		}
		return m.snapshotLocked(), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ch := m.refreshes.DoChan(refreshKey, func() (any, error) {
		return m.refresh(m.ctx)
	})
	select {
	case res := <-ch:
		outcome, _ := res.Val.(refreshOutcome)
		return outcome.snapshot, res.Err
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return Snapshot{}, ErrClosed
		}
		return m.snapshotLocked(), pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "cart refresh abandoned")
	}
}

func (m *Manager) refresh(ctx context.Context) (refreshOutcome, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return refreshOutcome{}, ErrClosed
	}
	watermark := m.seq
	issuedDirty := m.inflight > 0
	m.fetchSeq++
	fetchID := m.fetchSeq
	m.acquireLocked()
	m.mu.Unlock()
	defer m.releaseBusy()

	start := time.Now()
	remote, err := m.remote.Fetch(ctx)
	m.metrics.ObserveRefresh(time.Since(start))
	if err == nil {
		if verr := ValidateLines(remote); verr != nil {
			err = pkgerrors.Wrap(pkgerrors.CodeMalformed, verr, "cart service returned an invalid cart")
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return refreshOutcome{}, ErrClosed
	}
	if err != nil {
		kind := NoticeNetworkFailure
		if pkgerrors.IsCode(err, pkgerrors.CodeMalformed) {
			kind = NoticeMalformedResponse
		}
		m.enqueueLocked(event{notice: &Notice{Kind: kind, Operation: "fetch", Err: err}})
		m.metrics.IncRemoteFailure("fetch")
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logg.WarnErr(m.logg.WithField(ctx, "notice", string(kind)), "cart.refresh.failed", err)
		return refreshOutcome{snapshot: snap}, err
	}
	if reason := m.staleReasonLocked(watermark, fetchID, issuedDirty); reason != "" {
		m.metrics.IncDiscarded(reason)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logg.Debug(m.logg.WithField(ctx, "reason", reason), "cart refresh discarded")
		return refreshOutcome{snapshot: snap, discarded: true}, nil
	}

	m.appliedFetch = fetchID
	m.base = cloneLines(remote)
	m.ops = nil
	if !linesEqual(m.base, m.lines) {
		m.lines = cloneLines(m.base)
		m.version++
		snap := m.snapshotLocked()
		m.enqueueLocked(event{snapshot: &snap})
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	return refreshOutcome{snapshot: snap}, nil
}

// staleReasonLocked explains why a fetch result must not replace the view.
// A fetch issued while a mutation was unconfirmed may have been served
// before the service applied it, even if the mutation has since settled.
func (m *Manager) staleReasonLocked(watermark, fetchID uint64, issuedDirty bool) string {
	switch {
	case issuedDirty || m.inflight > 0:
		return discardMutationInFlight
	case m.seq != watermark:
		return discardNewerMutation
	case fetchID < m.appliedFetch:
		return discardSuperseded
	}
	return ""
}

// Subscribe registers an observer and returns a func that removes it.
func (m *Manager) Subscribe(observer Observer) func() {
	if observer == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextObserver++
	id := m.nextObserver
	m.observers = append(m.observers, subscription{id: id, observer: observer})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.observers {
				if sub.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Flush blocks until no mutation or refresh is outstanding and every queued
// observer event has been delivered.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.busy == 0 {
		m.mu.Unlock()
		return nil
	}
	idle := m.idle
	m.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops background work. Late responses are discarded and queued
// events dropped; further operations return ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.events = nil
	if m.busy > 0 {
		m.busy = 0
		close(m.idle)
	}
	m.mu.Unlock()
	m.cancel()
}

func (m *Manager) dispatch() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}
		for {
			m.mu.Lock()
			if m.closed || len(m.events) == 0 {
				m.mu.Unlock()
				break
			}
			ev := m.events[0]
			m.events = m.events[1:]
			observers := make([]Observer, 0, len(m.observers))
			for _, sub := range m.observers {
				observers = append(observers, sub.observer)
			}
			m.mu.Unlock()

			for _, observer := range observers {
				if ev.snapshot != nil {
					observer.CartChanged(*ev.snapshot)
				}
				if ev.notice != nil {
					observer.CartNotice(*ev.notice)
				}
			}
			m.releaseBusy()
		}
	}
}

func (m *Manager) enqueueLocked(ev event) {
	if len(m.observers) == 0 {
		return
	}
	m.events = append(m.events, ev)
	m.acquireLocked()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) acquireLocked() {
	if m.busy == 0 {
		m.idle = make(chan struct{})
	}
	m.busy++
}

func (m *Manager) releaseLocked() {
	if m.busy == 0 {
		return
	}
	m.busy--
	if m.busy == 0 {
		close(m.idle)
	}
}

func (m *Manager) releaseBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.releaseLocked()
	}
}

func (m *Manager) dropOpLocked(target *pendingOp) {
	for i, op := range m.ops {
		if op == target {
			m.ops = append(m.ops[:i:i], m.ops[i+1:]...)
			return
		}
	}
}

func (m *Manager) hasConfirmedLocked() bool {
	for _, op := range m.ops {
		if op.state == opConfirmed {
			return true
		}
	}
	return false
}

func (m *Manager) rebuildLocked() {
	next := replay(m.base, m.ops)
	if linesEqual(next, m.lines) {
		return
	}
	m.lines = next
	m.version++
	snap := m.snapshotLocked()
	m.enqueueLocked(event{snapshot: &snap})
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{Lines: cloneLines(m.lines), Version: m.version}
}
