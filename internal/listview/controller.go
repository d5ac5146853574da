// Package listview implements the data controller behind one paginated,
// filterable admin list: it owns the current query, issues fetches through
// a Resource, discards superseded results and runs row and form actions.
package listview

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/internal/pagination"
	"github.com/pitabwire/marketdesk/model"
)

// Resource is the remote collection a controller reads and mutates.
// Implementations must normalize every outcome into a model.Result.
type Resource[T any] interface {
	FetchPage(ctx context.Context, q filter.ListQuery) model.Result[model.ListResult[T]]
	Create(ctx context.Context, payload model.Payload) model.Result[T]
	Update(ctx context.Context, id string, payload model.Payload) model.Result[T]
	Remove(ctx context.Context, id string) model.Result[struct{}]
	ToggleStatus(ctx context.Context, id string) model.Result[T]
}

// Messages for failures raised by the controller itself.
const (
	MessageClosed      = "This view has been closed."
	MessageRowMissing  = "The record is no longer on this page."
	MessageNoForm      = "No form is open."
	MessageFormPending = "The form is already being submitted."
)

// Controller is the list-view data controller for entities of type T. All
// methods are safe for concurrent use. List fetches run on goroutines bound
// to the controller's lifetime; row actions and form submissions run on
// the caller's goroutine and context. No lock is held across a call to the
// Resource.
type Controller[T model.Entity[T]] struct {
	client     Resource[T]
	collection string
	maxVisible int
	prompt     string
	logger     *zap.Logger
	metrics    *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	query      filter.ListQuery
	items      []T
	totalItems int
	totalPages int
	load       LoadState
	loadErr    *model.Failure
	actionErr  *model.Failure
	submit     SubmitState
	submitting bool
	form       FormState
	formSeq    uint64
	busy       map[string]struct{}
	issued     uint64
	applied    uint64
	version    uint64
	inFlight   int
	idle       chan struct{}
	closed     bool
	observers  []func(Snapshot[T])
}

// New creates a controller over client. Nothing is fetched until Mount.
func New[T model.Entity[T]](client Resource[T], opts ...Option) *Controller[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(o.parent))
	idle := make(chan struct{})
	close(idle)

	return &Controller[T]{
		client:     client,
		collection: o.collection,
		maxVisible: o.maxVisible,
		prompt:     o.deletePrompt,
		logger:     o.logger.With(zap.String("collection", o.collection)),
		metrics:    o.metrics,
		ctx:        ctx,
		cancel:     cancel,
		query:      filter.NewListQuery(o.pageSize).WithFilter(o.filter),
		items:      []T{},
		load:       LoadIdle,
		submit:     SubmitReady,
		busy:       make(map[string]struct{}),
		idle:       idle,
	}
}

// Collection returns the collection name the controller was created for.
func (c *Controller[T]) Collection() string { return c.collection }

// Mount issues the first fetch and waits until the list settles or ctx is
// done. A load failure is reported through the snapshot, not the error.
func (c *Controller[T]) Mount(ctx context.Context) error {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q })
	return c.Wait(ctx)
}

// Reload refetches the current query.
func (c *Controller[T]) Reload() {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q })
}

func (c *Controller[T]) SetSearchText(text string) {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q.WithSearchText(text) })
}

func (c *Controller[T]) SetFromDate(d *time.Time) {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q.WithFromDate(d) })
}

func (c *Controller[T]) SetToDate(d *time.Time) {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q.WithToDate(d) })
}

func (c *Controller[T]) SetStatus(s filter.Status) {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q.WithStatus(s) })
}

func (c *Controller[T]) SetPageSize(n int) {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q.WithPageSize(n) })
}

// ResetFilters clears every filter and returns to the first page.
func (c *Controller[T]) ResetFilters() {
	c.mutate(func(q filter.ListQuery) filter.ListQuery { return q.WithoutFilters() })
}

// SetPage moves to page n, clamped to the known page range. Filters are
// left untouched.
func (c *Controller[T]) SetPage(n int) {
	c.mutate(func(q filter.ListQuery) filter.ListQuery {
		if c.applied > 0 && n > max(1, c.totalPages) {
			n = max(1, c.totalPages)
		}
		return q.WithPage(n)
	})
}

// Wait blocks until no fetch is in flight or ctx is done.
func (c *Controller[T]) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight fetches and waits for them to return. Later
// mutations are ignored and actions fail with a precondition failure.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.observers = nil
	c.mu.Unlock()

	c.cancel()
	_ = c.Wait(context.Background())
}

// OnChange registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that caused the change and must not block.
func (c *Controller[T]) OnChange(fn func(Snapshot[T])) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// mutate derives the next query from the current one and fetches it.
func (c *Controller[T]) mutate(next func(filter.ListQuery) filter.ListQuery) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.fetchLocked(next(c.query))
	c.commitAndNotify()
}

// fetchLocked records q as the current query and starts fetching it under
// a new sequence number. Must be called with c.mu held.
func (c *Controller[T]) fetchLocked(q filter.ListQuery) {
	c.issued++
	c.query = q
	c.load = LoadLoading
	if c.inFlight == 0 {
		c.idle = make(chan struct{})
	}
	c.inFlight++
	go c.runFetch(c.issued, q)
}

func (c *Controller[T]) runFetch(seq uint64, q filter.ListQuery) {
	ctx, span := observability.StartSpan(c.ctx, "listview.fetch",
		observability.AttrCollection.String(c.collection),
		observability.AttrFetchSeq.Int64(int64(seq)),
		observability.AttrPage.Int(q.Page),
	)
	start := time.Now()
	res := c.client.FetchPage(ctx, q)
	elapsed := time.Since(start)

	c.mu.Lock()
	changed := c.applyFetchLocked(seq, q, res, elapsed)
	span.SetAttributes(attribute.Bool("marketdesk.stale", !changed))
	observability.EndSpanWithError(span, failureErr(res.Failure))
	if changed {
		c.commitAndNotify()
	} else {
		c.mu.Unlock()
	}

	// Waiters are released only after observers have seen the result.
	c.mu.Lock()
	c.inFlight--
	if c.inFlight == 0 {
		close(c.idle)
	}
	c.mu.Unlock()
}

// applyFetchLocked applies res if seq is still the latest fetch. It returns
// false when the result was discarded.
func (c *Controller[T]) applyFetchLocked(seq uint64, q filter.ListQuery, res model.Result[model.ListResult[T]], elapsed time.Duration) bool {
	if c.closed || seq != c.issued {
		c.metrics.RecordViewFetch(c.collection, observability.FetchStale, elapsed)
		c.logger.Debug("discarding superseded fetch",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", c.issued),
		)
		return false
	}

	if !res.OK() {
		c.metrics.RecordViewFetch(c.collection, observability.FetchFailed, elapsed)
		c.logger.Warn("list fetch failed",
			zap.Uint64("seq", seq),
			zap.String("kind", string(res.Failure.Kind)),
			zap.Int("status", res.Failure.StatusCode),
		)
		c.load = LoadError
		c.loadErr = res.Failure
		return true
	}

	page := res.Data
	if last := max(1, page.TotalPages); q.Page > last {
		c.logger.Debug("page out of range, falling back",
			zap.Int("page", q.Page),
			zap.Int("total_pages", page.TotalPages),
		)
		c.fetchLocked(q.WithPage(last))
		return true
	}

	c.metrics.RecordViewFetch(c.collection, observability.FetchApplied, elapsed)
	items := page.Items
	if items == nil {
		items = []T{}
	}
	c.items = items
	c.totalItems = page.TotalItems
	c.totalPages = page.TotalPages
	c.load = LoadLoaded
	c.loadErr = nil
	c.applied = seq
	return true
}

// ToggleStatus flips the status of one row. The row is busy until the call
// returns; on success only that row's status is patched, with no refetch.
func (c *Controller[T]) ToggleStatus(ctx context.Context, id string) *model.Failure {
	if f := c.acquireRow(id); f != nil {
		return f
	}

	res := c.client.ToggleStatus(ctx, id)

	c.mu.Lock()
	delete(c.busy, id)
	outcome := "success"
	if !res.OK() {
		outcome = string(res.Failure.Kind)
		c.actionErr = res.Failure
	} else if idx := c.indexLocked(id); idx >= 0 {
		row := c.items[idx]
		active := !row.Active()
		if res.Data.EntityID() == id {
			active = res.Data.Active()
		}
		items := slices.Clone(c.items)
		items[idx] = row.WithActive(active)
		c.items = items
	}
	c.metrics.RecordRowAction(c.collection, "toggle", outcome)
	c.commitAndNotify()
	return res.Failure
}

// Confirmer is the blocking yes/no gate in front of destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Delete removes one row after confirm approves. It reports whether the
// delete was carried out. On success the list is refetched; if the row was
// the only one on a page after the first, the previous page is fetched.
func (c *Controller[T]) Delete(ctx context.Context, id string, confirm Confirmer) (bool, *model.Failure) {
	if f := c.acquireRow(id); f != nil {
		return false, f
	}

	if confirm == nil || !confirm.Confirm(ctx, c.prompt) {
		c.mu.Lock()
		delete(c.busy, id)
		c.commitAndNotify()
		return false, nil
	}

	res := c.client.Remove(ctx, id)

	c.mu.Lock()
	delete(c.busy, id)
	if !res.OK() {
		c.actionErr = res.Failure
		c.metrics.RecordRowAction(c.collection, "delete", string(res.Failure.Kind))
		c.commitAndNotify()
		return false, res.Failure
	}

	c.metrics.RecordRowAction(c.collection, "delete", "success")
	q := c.query
	if q.Page > 1 && len(c.items) == 1 && c.items[0].EntityID() == id {
		q = q.WithPage(q.Page - 1)
	}
	if !c.closed {
		c.fetchLocked(q)
	}
	c.commitAndNotify()
	return true, nil
}

// acquireRow marks id busy, failing if it already is or is not listed.
func (c *Controller[T]) acquireRow(id string) *model.Failure {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return model.NewPreconditionFailure(MessageClosed)
	case c.isBusyLocked(id):
		c.mu.Unlock()
		return model.NewPreconditionFailure(model.MessageRowBusy)
	case c.indexLocked(id) < 0:
		c.mu.Unlock()
		return model.NewPreconditionFailure(MessageRowMissing)
	}
	c.busy[id] = struct{}{}
	c.actionErr = nil
	c.commitAndNotify()
	return nil
}

func (c *Controller[T]) isBusyLocked(id string) bool {
	_, ok := c.busy[id]
	return ok
}

func (c *Controller[T]) indexLocked(id string) int {
	return slices.IndexFunc(c.items, func(it T) bool { return it.EntityID() == id })
}

// commitAndNotify bumps the version, unlocks c.mu and delivers the new
// snapshot to observers. Must be called with c.mu held.
func (c *Controller[T]) commitAndNotify() {
	c.version++
	observers := c.observers
	var snap Snapshot[T]
	if len(observers) > 0 {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	rows := make([]string, 0, len(c.busy))
	for id := range c.busy {
		rows = append(rows, id)
	}
	sort.Strings(rows)

	form := c.form
	form.Values = form.Values.Clone()

	submit := c.submit
	if c.submitting {
		submit = SubmitSubmitting
	}

	return Snapshot[T]{
		Collection: c.collection,
		Query:      c.query,
		Items:      c.items,
		TotalItems: c.totalItems,
		TotalPages: c.totalPages,
		Window:     pagination.Window(c.query.Page, c.totalPages, c.maxVisible),
		Load:       c.load,
		Submit:     submit,
		Loading: LoadingState{
			ListLoading:       c.load == LoadLoading,
			FormSubmitting:    c.submitting,
			RowActionInFlight: len(rows) > 0,
			RowsInFlight:      rows,
		},
		Error:       c.loadErr,
		ActionError: c.actionErr,
		Form:        form,
		Seq:         c.issued,
		AppliedSeq:  c.applied,
		Version:     c.version,
	}
}

func failureErr(f *model.Failure) error {
	if f == nil {
		return nil
	}
	return f
}
