package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valter-silva-au/taskboard/internal/logging"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// LoadState is the fetch state of a board as a whole.
type LoadState string

const (
	StateLoading LoadState = "loading"
	StateLoaded  LoadState = "loaded"
	StateError   LoadState = "error"
)

// Column is one bucket of the board in display order.
type Column struct {
	Status models.TaskStatus `json:"status"`
	Tasks  []models.Task     `json:"tasks"`
}

// RollbackToken identifies one optimistic mutation.
type RollbackToken struct {
	TaskID string
	seq    uint64
	before models.Task
}

// Before returns the task as it was displayed right before the mutation.
func (t RollbackToken) Before() models.Task {
	return t.before.Clone()
}

type patchEntry struct {
	seq     uint64
	patch   models.TaskPatch
	remove  bool
	preview bool
}

// pendingTask tracks a task with unconfirmed local mutations. base is the
// latest authoritative version; the displayed value is base with the
// patches re-applied in issue order, drag previews last.
type pendingTask struct {
	base    models.Task
	gone    bool
	patches []patchEntry
}

// Board holds the in-memory view of one project's tasks, applies optimistic
// mutations and reconciles them with snapshots pushed by the store.
type Board struct {
	projectID string
	store     TaskStore
	events    EventLogger
	log       logrus.FieldLogger
	now       func() time.Time

	mu          sync.Mutex
	confirmed   map[string]models.Task
	pending     map[string]*pendingTask
	seq         uint64
	state       LoadState
	err         error
	unsubscribe func()
	firstLoad   chan struct{}
	loadOnce    *sync.Once
	listeners   map[int]func()
	nextID      int
}

// NewBoard creates a board session for projectID. events and log may be nil.
func NewBoard(projectID string, store TaskStore, events EventLogger, log logrus.FieldLogger) *Board {
	if log == nil {
		log = logging.Discard()
	}
	return &Board{
		projectID: projectID,
		store:     store,
		events:    events,
		log:       log.WithField("project", projectID),
		now:       func() time.Time { return time.Now().UTC() },
		confirmed: make(map[string]models.Task),
		pending:   make(map[string]*pendingTask),
		state:     StateLoading,
		firstLoad: make(chan struct{}),
		loadOnce:  &sync.Once{},
		listeners: make(map[int]func()),
	}
}

// ProjectID returns the project this board shows.
func (b *Board) ProjectID() string { return b.projectID }

// Load subscribes to the project's tasks and waits for the first snapshot.
// Calling Load on a subscribed board is a no-op.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	if b.unsubscribe != nil {
		b.mu.Unlock()
		return nil
	}
	if b.state != StateLoaded {
		b.state = StateLoading
	}
	first := b.firstLoad
	b.mu.Unlock()

	unsub, err := b.store.SubscribeToProjectTasks(ctx, b.projectID, b.applySnapshot, b.feedFailed)
	if err != nil {
		serr := &SubscriptionError{ProjectID: b.projectID, Err: err}
		b.mu.Lock()
		if b.state == StateLoading {
			b.state = StateError
		}
		b.err = serr
		b.mu.Unlock()
		b.log.WithError(err).Warn("subscribing to project tasks failed")
		logEvent(b.events, EventSubscriptionError, map[string]any{"project_id": b.projectID, "error": err.Error()})
		b.notify()
		return serr
	}

	b.mu.Lock()
	b.unsubscribe = unsub
	b.mu.Unlock()

	select {
	case <-first:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for first snapshot: %w", ctx.Err())
	}
}

// Resubscribe drops the current subscription, if any, and loads again. The
// last good state stays visible until the new snapshot arrives.
func (b *Board) Resubscribe(ctx context.Context) error {
	b.mu.Lock()
	unsub := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	return b.Load(ctx)
}

// Close unsubscribes from the store and drops all change listeners.
func (b *Board) Close() {
	b.mu.Lock()
	unsub := b.unsubscribe
	b.unsubscribe = nil
	b.listeners = make(map[int]func())
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// State returns the board's load state.
func (b *Board) State() LoadState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the last non-fatal subscription error, or nil once a newer
// snapshot has arrived.
func (b *Board) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// OnChange registers fn to run after every change of the visible task set.
// fn runs without the board lock held. The returned function unregisters it.
func (b *Board) OnChange(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Board) notify() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// applySnapshot replaces the authoritative set. Tasks with pending mutations
// take the snapshot as their new base and keep their patches on top.
func (b *Board) applySnapshot(tasks []models.Task) {
	next := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		if t.ProjectID != "" && t.ProjectID != b.projectID {
			continue
		}
		next[t.ID] = t.Clone()
	}

	b.mu.Lock()
	for id, p := range b.pending {
		if t, ok := next[id]; ok {
			p.base = t.Clone()
			p.gone = false
		} else {
			p.gone = true
		}
	}
	b.confirmed = next
	b.state = StateLoaded
	b.err = nil
	once, first := b.loadOnce, b.firstLoad
	b.mu.Unlock()

	once.Do(func() { close(first) })
	b.notify()
}

func (b *Board) feedFailed(err error) {
	b.mu.Lock()
	b.err = &SubscriptionError{ProjectID: b.projectID, Err: err}
	b.mu.Unlock()
	b.log.WithError(err).Warn("task feed failed; keeping last snapshot")
	logEvent(b.events, EventSubscriptionError, map[string]any{"project_id": b.projectID, "error": err.Error()})
	b.notify()
}

// viewLocked returns the displayed value of a task.
func (b *Board) viewLocked(id string) (models.Task, bool) {
	return b.valueLocked(id, true)
}

// placedLocked returns the value of a task ignoring drag previews. Order
// plans are built from it so a hover never reaches the store.
func (b *Board) placedLocked(id string) (models.Task, bool) {
	return b.valueLocked(id, false)
}

func (b *Board) valueLocked(id string, withPreview bool) (models.Task, bool) {
	p, ok := b.pending[id]
	if !ok {
		t, found := b.confirmed[id]
		return t, found
	}
	t := p.base.Clone()
	for _, e := range p.patches {
		if e.remove {
			return models.Task{}, false
		}
		if !e.preview {
			e.patch.Apply(&t)
		}
	}
	if withPreview {
		for _, e := range p.patches {
			if e.preview {
				e.patch.Apply(&t)
			}
		}
	}
	return t, true
}

func (b *Board) allLocked(withPreview bool) []models.Task {
	out := make([]models.Task, 0, len(b.confirmed)+len(b.pending))
	for id := range b.confirmed {
		if _, isPending := b.pending[id]; isPending {
			continue
		}
		if t, ok := b.valueLocked(id, withPreview); ok {
			out = append(out, t.Clone())
		}
	}
	for id := range b.pending {
		if t, ok := b.valueLocked(id, withPreview); ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// bucketLocked returns the displayed bucket.
func (b *Board) bucketLocked(status models.TaskStatus) []models.Task {
	return b.filterBucket(b.allLocked(true), status)
}

// placedBucketLocked returns the bucket without drag previews.
func (b *Board) placedBucketLocked(status models.TaskStatus) []models.Task {
	return b.filterBucket(b.allLocked(false), status)
}

func (b *Board) filterBucket(all []models.Task, status models.TaskStatus) []models.Task {
	var out []models.Task
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	SortBucket(out)
	return out
}

// Task returns the displayed value of a task.
func (b *Board) Task(id string) (models.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.viewLocked(id)
	if !ok {
		return models.Task{}, false
	}
	return t.Clone(), true
}

// Tasks returns every displayed task, sorted by column and order.
func (b *Board) Tasks() []models.Task {
	b.mu.Lock()
	out := b.allLocked(true)
	b.mu.Unlock()
	SortBoard(out)
	return out
}

// Bucket returns the displayed tasks of one status in order.
func (b *Board) Bucket(status models.TaskStatus) []models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bucketLocked(status)
}

// Columns returns all five buckets in display order. Every displayed task
// appears in exactly one column.
func (b *Board) Columns() []Column {
	tasks := b.Tasks()
	cols := make([]Column, len(models.Statuses))
	for i, s := range models.Statuses {
		cols[i].Status = s
	}
	for _, t := range tasks {
		if i := t.Status.Column(); i < len(cols) {
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
	}
	return cols
}

// IsPending reports whether the task has unconfirmed local mutations.
func (b *Board) IsPending(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[id]
	return ok
}

// ApplyOptimistic merges patch into the local copy of the task and marks it
// pending until Confirm or Rollback is called with the returned token.
func (b *Board) ApplyOptimistic(taskID string, patch models.TaskPatch) (RollbackToken, error) {
	b.mu.Lock()
	tok, err := b.applyLocked(taskID, patchEntry{patch: patch})
	b.mu.Unlock()
	if err != nil {
		return RollbackToken{}, err
	}
	b.notify()
	return tok, nil
}

// preview shows the task in another bucket without making the change visible
// to order plans. Only discard removes it.
func (b *Board) preview(taskID string, status models.TaskStatus) (RollbackToken, error) {
	b.mu.Lock()
	tok, err := b.applyLocked(taskID, patchEntry{patch: models.TaskPatch{Status: &status}, preview: true})
	b.mu.Unlock()
	if err != nil {
		return RollbackToken{}, err
	}
	b.notify()
	return tok, nil
}

func (b *Board) applyLocked(taskID string, e patchEntry) (RollbackToken, error) {
	cur, ok := b.viewLocked(taskID)
	if !ok {
		return RollbackToken{}, taskNotFound(taskID)
	}
	p, ok := b.pending[taskID]
	if !ok {
		p = &pendingTask{base: b.confirmed[taskID].Clone()}
		b.pending[taskID] = p
	}
	b.seq++
	e.seq = b.seq
	p.patches = append(p.patches, e)
	return RollbackToken{TaskID: taskID, seq: b.seq, before: cur.Clone()}, nil
}

// Confirm clears the pending state of the mutation, folding it into the
// authoritative value. It takes the token rather than a task id so that two
// in-flight mutations of one task settle independently.
func (b *Board) Confirm(tok RollbackToken) {
	b.mu.Lock()
	b.confirmLocked(tok)
	b.mu.Unlock()
	b.notify()
}

func (b *Board) confirmLocked(tok RollbackToken) {
	p, ok := b.pending[tok.TaskID]
	if !ok {
		return
	}
	i := p.index(tok.seq)
	if i < 0 {
		return
	}
	e := p.patches[i]
	if e.preview {
		return
	}
	p.patches = append(p.patches[:i], p.patches[i+1:]...)
	if e.remove {
		delete(b.pending, tok.TaskID)
		delete(b.confirmed, tok.TaskID)
		return
	}
	e.patch.Apply(&p.base)
	b.settleLocked(tok.TaskID, p)
}

// Rollback discards the mutation and restores the value it replaced. It
// returns cause so callers can surface it; a not-found cause also removes the
// task locally and is returned as a NotFoundError.
func (b *Board) Rollback(tok RollbackToken, cause error) error {
	b.mu.Lock()
	b.rollbackLocked(tok)
	gone := cause != nil && IsNotFound(cause)
	if gone {
		delete(b.pending, tok.TaskID)
		delete(b.confirmed, tok.TaskID)
	}
	b.mu.Unlock()

	data := map[string]any{"task_id": tok.TaskID, "project_id": b.projectID}
	if cause != nil {
		data["error"] = cause.Error()
	}
	logEvent(b.events, EventTaskRollback, data)
	b.log.WithField("task", tok.TaskID).WithError(cause).Info("rolled back optimistic mutation")
	b.notify()

	if gone {
		return taskNotFound(tok.TaskID)
	}
	return cause
}

func (b *Board) rollbackLocked(tok RollbackToken) {
	p, ok := b.pending[tok.TaskID]
	if !ok {
		return
	}
	i := p.index(tok.seq)
	if i < 0 {
		return
	}
	p.patches = append(p.patches[:i], p.patches[i+1:]...)
	b.settleLocked(tok.TaskID, p)
}

// settleLocked drops the pending entry once no patches remain.
func (b *Board) settleLocked(id string, p *pendingTask) {
	if len(p.patches) > 0 {
		return
	}
	delete(b.pending, id)
	if p.gone {
		delete(b.confirmed, id)
		return
	}
	b.confirmed[id] = p.base
}

func (p *pendingTask) index(seq uint64) int {
	for i, e := range p.patches {
		if e.seq == seq {
			return i
		}
	}
	return -1
}

// discard rolls back a mutation that never reached the store. Unlike
// Rollback it records nothing.
func (b *Board) discard(tok RollbackToken) {
	b.mu.Lock()
	b.rollbackLocked(tok)
	b.mu.Unlock()
	b.notify()
}

// forget drops a task from the local view, used when the store reports it gone.
func (b *Board) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	delete(b.confirmed, id)
	b.mu.Unlock()
	b.notify()
}

// reflect applies a store-confirmed change to the local view without making
// it pending. It is used for child collections that bypass the optimistic
// protocol.
func (b *Board) reflect(id string, mutate func(*models.Task)) {
	b.mu.Lock()
	if p, ok := b.pending[id]; ok {
		mutate(&p.base)
	}
	if t, ok := b.confirmed[id]; ok {
		t = t.Clone()
		mutate(&t)
		b.confirmed[id] = t
	}
	b.mu.Unlock()
	b.notify()
}

// Remove deletes a task locally right away and asks the store to delete it.
// On failure the task is restored.
func (b *Board) Remove(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	tok, err := b.applyLocked(taskID, patchEntry{remove: true})
	b.mu.Unlock()
	if err != nil {
		return err
	}
	b.notify()

	if err := b.store.DeleteTask(context.WithoutCancel(ctx), taskID); err != nil {
		if IsNotFound(err) {
			b.Confirm(tok)
			return taskNotFound(taskID)
		}
		return b.Rollback(tok, &StoreWriteError{Op: "delete", TaskID: taskID, Err: err})
	}
	b.Confirm(tok)
	logEvent(b.events, EventTaskDeleted, map[string]any{"task_id": taskID, "project_id": b.projectID})
	b.log.WithField("task", taskID).Info("task deleted")
	return nil
}

// Create validates the draft, places it last in its bucket and writes it to
// the store. The created task is visible locally as soon as the store
// returns its ID.
func (b *Board) Create(ctx context.Context, draft models.TaskDraft) (models.Task, error) {
	if err := b.normalizeDraft(&draft); err != nil {
		return models.Task{}, err
	}

	b.mu.Lock()
	bucket := b.placedBucketLocked(draft.Status)
	order, renumbered := InsertionOrder(BucketOrders(bucket), len(bucket))
	var renumber []renumberWrite
	if renumbered != nil {
		renumber = b.renumberLocked(bucket, renumbered)
	}
	b.mu.Unlock()
	if len(renumber) > 0 {
		b.notify()
		if err := b.writeRenumbered(ctx, renumber); err != nil {
			return models.Task{}, err
		}
	}
	draft.Order = order

	id, err := b.store.CreateTask(ctx, draft)
	if err != nil {
		return models.Task{}, &StoreWriteError{Op: "create", Err: err}
	}
	task := draft.NewTask(id, b.now())

	b.mu.Lock()
	if existing, ok := b.confirmed[id]; ok {
		task = existing.Clone()
	} else {
		b.confirmed[id] = task.Clone()
	}
	b.mu.Unlock()
	b.notify()

	logEvent(b.events, EventTaskCreated, map[string]any{
		"task_id":    id,
		"project_id": b.projectID,
		"status":     string(task.Status),
		"type":       string(task.Type),
		"priority":   string(task.Priority),
	})
	b.log.WithField("task", id).Info("task created")
	return task, nil
}

func (b *Board) normalizeDraft(d *models.TaskDraft) error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return validationError("title", "must not be empty")
	}
	if d.ProjectID == "" {
		d.ProjectID = b.projectID
	}
	if d.ProjectID != b.projectID {
		return validationError("projectId", fmt.Sprintf("task belongs to %s, board shows %s", d.ProjectID, b.projectID))
	}
	if d.Status == "" {
		d.Status = models.StatusTodo
	}
	if !d.Status.Valid() {
		return validationError("status", fmt.Sprintf("unknown status %q", d.Status))
	}
	if d.Priority == "" {
		d.Priority = models.PriorityMedium
	}
	if !d.Priority.Valid() {
		return validationError("priority", fmt.Sprintf("unknown priority %q", d.Priority))
	}
	if d.Type == "" {
		d.Type = models.TaskTypeTask
	}
	if !d.Type.Valid() {
		return validationError("type", fmt.Sprintf("unknown type %q", d.Type))
	}
	if d.EstimatedHours != nil && *d.EstimatedHours < 0 {
		return validationError("estimatedHours", "must not be negative")
	}
	for _, s := range d.Subtasks {
		if strings.TrimSpace(s.Title) == "" {
			return validationError("subtasks", "subtask title must not be empty")
		}
	}
	d.Tags = uniqueSet(d.Tags)
	d.Watchers = uniqueSet(d.Watchers)
	return nil
}

// Update applies a field-level edit. Status and order change through Move or
// the drag controller, assignee fields through Assign and subtasks through
// the DetailService. Tags and watchers are kept as sets in first-seen order.
func (b *Board) Update(ctx context.Context, taskID string, patch models.TaskPatch) (models.Task, error) {
	if patch.Status != nil || patch.Order != nil {
		return models.Task{}, validationError("status", "status and order change through a move")
	}
	if patch.AssigneeID != nil || patch.AssigneeName != nil || patch.AssigneeAvatar != nil {
		return models.Task{}, validationError("assignee", "assignee changes through the assignment operation")
	}
	if patch.Subtasks != nil {
		return models.Task{}, validationError("subtasks", "subtasks change through the subtask operations")
	}
	patch.Tags = uniqueSet(patch.Tags)
	patch.Watchers = uniqueSet(patch.Watchers)
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Task{}, validationError("title", "must not be empty")
		}
		patch.Title = &title
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return models.Task{}, validationError("priority", fmt.Sprintf("unknown priority %q", *patch.Priority))
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return models.Task{}, validationError("type", fmt.Sprintf("unknown type %q", *patch.Type))
	}
	if patch.EstimatedHours != nil && *patch.EstimatedHours < 0 {
		return models.Task{}, validationError("estimatedHours", "must not be negative")
	}
	if patch.IsEmpty() {
		return models.Task{}, validationError("patch", "nothing to update")
	}
	return b.commit(ctx, taskID, patch, "update")
}

// Assign sets or clears (nil) the task's assignee and its display fields.
func (b *Board) Assign(ctx context.Context, taskID string, a *models.Assignee) (models.Task, error) {
	var id, name, avatar string
	if a != nil {
		if strings.TrimSpace(a.ID) == "" {
			return models.Task{}, validationError("assigneeId", "must not be empty")
		}
		id, name, avatar = a.ID, a.Name, a.Avatar
	}
	return b.commit(ctx, taskID, models.TaskPatch{AssigneeID: &id, AssigneeName: &name, AssigneeAvatar: &avatar}, "assign")
}

// commit runs the optimistic apply, store write, confirm-or-rollback cycle
// for a field-level patch.
func (b *Board) commit(ctx context.Context, taskID string, patch models.TaskPatch, op string) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	now := b.now()
	patch.UpdatedAt = &now
	tok, err := b.ApplyOptimistic(taskID, patch)
	if err != nil {
		return models.Task{}, err
	}
	if err := b.store.UpdateTask(context.WithoutCancel(ctx), taskID, patch); err != nil {
		if IsNotFound(err) {
			return models.Task{}, b.Rollback(tok, err)
		}
		return models.Task{}, b.Rollback(tok, &StoreWriteError{Op: op, TaskID: taskID, Err: err})
	}
	b.Confirm(tok)
	logEvent(b.events, EventTaskUpdated, map[string]any{"task_id": taskID, "project_id": b.projectID, "op": op})
	t, _ := b.Task(taskID)
	return t, nil
}

// placement describes where a task should land: over another task (taking
// its position) or at index of the status bucket, -1 meaning the end.
type placement struct {
	status     models.TaskStatus
	index      int
	overTaskID string
}

// Move repositions a task to index of the status bucket outside a drag
// gesture. A negative or too large index appends.
func (b *Board) Move(ctx context.Context, taskID string, status models.TaskStatus, index int) (models.Task, error) {
	if !status.Valid() {
		return models.Task{}, validationError("status", fmt.Sprintf("unknown status %q", status))
	}
	return b.place(ctx, taskID, placement{status: status, index: index}, nil)
}

type renumberWrite struct {
	tok    RollbackToken
	taskID string
	status models.TaskStatus
	order  float64
}

// renumberLocked applies renumbered orders optimistically to the bucket
// members whose key changed.
func (b *Board) renumberLocked(bucket []models.Task, orders []float64) []renumberWrite {
	var out []renumberWrite
	now := b.now()
	for i, t := range bucket {
		if t.Order == orders[i] {
			continue
		}
		patch := models.MovePatch(t.Status, orders[i])
		patch.UpdatedAt = &now
		tok, err := b.applyLocked(t.ID, patchEntry{patch: patch})
		if err != nil {
			continue
		}
		out = append(out, renumberWrite{tok: tok, taskID: t.ID, status: t.Status, order: orders[i]})
	}
	if len(out) > 0 {
		logEvent(b.events, EventTaskRenumbered, map[string]any{"project_id": b.projectID, "count": len(out)})
	}
	return out
}

// writeRenumbered persists renumbered keys in order. On the first failure the
// failed and unwritten entries are rolled back; written ones stay confirmed.
func (b *Board) writeRenumbered(ctx context.Context, writes []renumberWrite) error {
	wctx := context.WithoutCancel(ctx)
	for i, w := range writes {
		if err := b.store.UpdateTaskStatus(wctx, w.taskID, w.status, w.order); err != nil {
			for _, rest := range writes[i+1:] {
				b.mu.Lock()
				b.rollbackLocked(rest.tok)
				b.mu.Unlock()
			}
			return b.Rollback(w.tok, &StoreWriteError{Op: "renumber", TaskID: w.taskID, Err: err})
		}
		b.Confirm(w.tok)
	}
	return nil
}

// place resolves the destination against the latest local bucket, applies the
// move optimistically and persists it. discard, when set, is rolled back in
// the same critical section so no snapshot can observe the gap between the
// two states.
func (b *Board) place(ctx context.Context, taskID string, pl placement, discard *RollbackToken) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		if discard != nil {
			b.mu.Lock()
			b.rollbackLocked(*discard)
			b.mu.Unlock()
			b.notify()
		}
		return models.Task{}, err
	}

	b.mu.Lock()
	if discard != nil {
		b.rollbackLocked(*discard)
	}
	plan, err := b.planLocked(taskID, pl)
	if err != nil || plan.noop {
		cur, _ := b.viewLocked(taskID)
		b.mu.Unlock()
		if discard != nil {
			b.notify()
		}
		return cur.Clone(), err
	}
	var renumber []renumberWrite
	if plan.renumbered != nil {
		renumber = b.renumberLocked(plan.others, plan.renumbered)
	}
	now := b.now()
	patch := models.MovePatch(plan.status, plan.order)
	patch.UpdatedAt = &now
	tok, err := b.applyLocked(taskID, patchEntry{patch: patch})
	b.mu.Unlock()
	b.notify()
	if err != nil {
		return models.Task{}, err
	}

	if len(renumber) > 0 {
		if err := b.writeRenumbered(ctx, renumber); err != nil {
			b.mu.Lock()
			b.rollbackLocked(tok)
			b.mu.Unlock()
			b.notify()
			return models.Task{}, err
		}
	}

	if err := b.store.UpdateTaskStatus(context.WithoutCancel(ctx), taskID, plan.status, plan.order); err != nil {
		if IsNotFound(err) {
			return models.Task{}, b.Rollback(tok, err)
		}
		return models.Task{}, b.Rollback(tok, &StoreWriteError{Op: "move", TaskID: taskID, Err: err})
	}
	b.Confirm(tok)

	logEvent(b.events, EventTaskMoved, map[string]any{
		"task_id":     taskID,
		"project_id":  b.projectID,
		"from_status": string(plan.from),
		"to_status":   string(plan.status),
		"order":       plan.order,
	})
	if plan.status == models.StatusDone && plan.from != models.StatusDone {
		logEvent(b.events, EventTaskCompleted, map[string]any{"task_id": taskID, "project_id": b.projectID})
	}
	b.log.WithFields(logrus.Fields{"task": taskID, "from": plan.from, "to": plan.status, "order": plan.order}).Info("task moved")

	t, _ := b.Task(taskID)
	return t, nil
}

type movePlan struct {
	from       models.TaskStatus
	status     models.TaskStatus
	order      float64
	others     []models.Task
	renumbered []float64
	noop       bool
}

// planLocked resolves pl against the placed buckets. A task shown elsewhere by
// another gesture's hover keeps its placed status here.
func (b *Board) planLocked(taskID string, pl placement) (movePlan, error) {
	cur, ok := b.placedLocked(taskID)
	if !ok {
		return movePlan{}, taskNotFound(taskID)
	}
	plan := movePlan{from: cur.Status, status: pl.status}

	index := pl.index
	if pl.overTaskID != "" {
		if pl.overTaskID == taskID {
			plan.noop = true
			return plan, nil
		}
		over, ok := b.viewLocked(pl.overTaskID)
		if !ok {
			return movePlan{}, taskNotFound(pl.overTaskID)
		}
		plan.status = over.Status
		index = indexOf(b.placedBucketLocked(over.Status), pl.overTaskID)
	}
	if !plan.status.Valid() {
		return movePlan{}, validationError("status", fmt.Sprintf("unknown status %q", plan.status))
	}

	bucket := b.placedBucketLocked(plan.status)
	others := make([]models.Task, 0, len(bucket))
	for _, t := range bucket {
		if t.ID != taskID {
			others = append(others, t)
		}
	}
	if index < 0 || index > len(others) {
		index = len(others)
	}
	if plan.status == cur.Status && indexOf(bucket, taskID) == index {
		plan.noop = true
		return plan, nil
	}

	plan.others = others
	plan.order, plan.renumbered = InsertionOrder(BucketOrders(others), index)
	return plan, nil
}

func indexOf(tasks []models.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
