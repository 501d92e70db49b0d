package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"collabEngine/backend/internal/ot/delta"
)

// DocKey identifies one collaborative document.
type DocKey struct {
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
}

func (k DocKey) String() string { return k.ProjectID + "/" + k.FileID }

type docState int

const (
	stateOpen docState = iota
	stateIdlePendingClose
)

// document is the authoritative per-file state. All fields are guarded
// by mu; the registry serializes every mutation of one document, which
// is what makes the submit pipeline linearizable.
type document struct {
	mu  sync.Mutex
	key DocKey

	buf     Buffer
	version uint64
	dirty   bool

	users map[uint64]*UserPresence
	// per-user applied-operation history, compose-capped, used to
	// rebase late-arriving concurrent submissions
	pending map[uint64][]TextOperation
	// cached holders of the external exclusive lock
	locks           map[uint64]struct{}
	lastSeqByClient map[string]uint64

	// recent applied ops for catch-up (ops-since)
	ring []AppliedOp

	state docState
	evict *time.Timer
}

// Options carries the registry tunables; zero values fall back to the
// documented defaults.
type Options struct {
	GracePeriod   time.Duration // eviction delay after the last close
	Debounce      time.Duration // persistence debounce
	SweepInterval time.Duration // idle/lock sweep period
	IdleThreshold time.Duration // presence considered stale after this
	HistoryDepth  int           // pending-operation cap per user
	RingCapacity  int           // catch-up ring size
	Priorities    PriorityPolicy
}

func (o Options) withDefaults() Options {
	if o.GracePeriod <= 0 {
		o.GracePeriod = 30 * time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Minute
	}
	if o.IdleThreshold <= 0 {
		o.IdleThreshold = 24 * time.Hour
	}
	if o.HistoryDepth <= 0 {
		o.HistoryDepth = 10
	}
	if o.RingCapacity <= 0 {
		o.RingCapacity = 1024
	}
	return o
}

// Registry owns every open CollaborativeDocument: content, version,
// presence, pending histories and the open → idle-pending-close →
// evicted lifecycle.
type Registry struct {
	mu   sync.RWMutex
	docs map[DocKey]*document
	opts Options

	gate      PermissionGate
	contents  ContentStore
	snapshots SnapshotSink
	activity  ActivityRecorder
	lockStore LockStore
	events    EventSink

	flusher *FlushScheduler
}

func NewRegistry(gate PermissionGate, contents ContentStore, snapshots SnapshotSink,
	activity ActivityRecorder, locks LockStore, events EventSink, opts Options) *Registry {
	r := &Registry{
		docs:      make(map[DocKey]*document),
		opts:      opts.withDefaults(),
		gate:      gate,
		contents:  contents,
		snapshots: snapshots,
		activity:  activity,
		lockStore: locks,
		events:    events,
	}
	r.flusher = NewFlushScheduler(r.opts.Debounce, r.flushNow)
	return r
}

// OpenResult is the reply payload for open-file.
type OpenResult struct {
	Content     string                  `json:"content"`
	Version     uint64                  `json:"version"`
	ActiveUsers map[uint64]UserPresence `json:"activeUsers"`
}

// OpenFile loads (or revives) the document and adds the user to it.
// Access is checked before any state is touched.
func (r *Registry) OpenFile(ctx context.Context, userID uint64, username string, key DocKey) (OpenResult, error) {
	ok, err := r.gate.CanAccess(ctx, userID, key.ProjectID)
	if err != nil {
		return OpenResult{}, fmt.Errorf("permission lookup: %w", err)
	}
	if !ok {
		return OpenResult{}, ErrAccessDenied
	}

	doc, err := r.getOrLoad(ctx, key)
	if err != nil {
		return OpenResult{}, err
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	// a re-open during the grace period cancels eviction
	if doc.state == stateIdlePendingClose {
		if doc.evict != nil {
			doc.evict.Stop()
			doc.evict = nil
		}
		doc.state = stateOpen
	}
	doc.users[userID] = &UserPresence{Username: username, LastActivity: time.Now()}
	return OpenResult{
		Content:     doc.buf.String(),
		Version:     doc.version,
		ActiveUsers: snapshotUsers(doc.users),
	}, nil
}

// CloseFile removes the user; the last close arms the grace timer.
func (r *Registry) CloseFile(ctx context.Context, userID uint64, key DocKey) error {
	doc := r.lookup(key)
	if doc == nil {
		return ErrDocumentNotOpen
	}
	doc.mu.Lock()
	delete(doc.users, userID)
	empty := len(doc.users) == 0
	if empty && doc.state == stateOpen {
		r.armEviction(doc)
	}
	doc.mu.Unlock()
	return nil
}

// Submit runs the operation pipeline: permission gate, conflict screen,
// resolve-or-transform, apply, bookkeeping, debounced persistence.
func (r *Registry) Submit(ctx context.Context, key DocKey, userID uint64,
	clientID string, clientSeq uint64, baseRevision uint64, ops delta.Delta) (AppliedOp, error) {

	doc := r.lookup(key)
	if doc == nil {
		return AppliedOp{}, ErrDocumentNotOpen
	}

	editable, err := r.gate.CanEdit(ctx, userID, key.ProjectID, key.FileID)
	if err != nil {
		return AppliedOp{}, fmt.Errorf("permission lookup: %w", err)
	}
	if !editable {
		return AppliedOp{}, ErrPermissionDenied
	}
	if err := ops.Validate(); err != nil {
		return AppliedOp{}, err
	}

	doc.mu.Lock()
	applied, err := r.submitLocked(doc, userID, clientID, clientSeq, baseRevision, ops)
	doc.mu.Unlock()
	if err != nil {
		return AppliedOp{}, err
	}

	r.flusher.Schedule(key)
	r.emitApplied(key, applied, baseRevision)
	return applied, nil
}

func (r *Registry) submitLocked(doc *document, userID uint64,
	clientID string, clientSeq uint64, baseRevision uint64, ops delta.Delta) (AppliedOp, error) {

	// exclusive lock held by someone else blocks the edit outright
	if len(doc.locks) > 0 {
		if _, mine := doc.locks[userID]; !mine {
			return AppliedOp{}, fmt.Errorf("%w: file locked", ErrPermissionDenied)
		}
	}
	if clientID != "" {
		if last, seen := doc.lastSeqByClient[clientID]; seen && clientSeq <= last {
			return AppliedOp{}, ErrDuplicateOrOutOfOrder
		}
	}
	if baseRevision > doc.version {
		return AppliedOp{}, fmt.Errorf("%w: base %d ahead of document %d", ErrRevisionConflict, baseRevision, doc.version)
	}

	now := time.Now()
	incoming := TextOperation{UserID: userID, Timestamp: now, Ops: ops}

	concurrent := doc.concurrentSince(baseRevision, userID)

	var conflicting []TextOperation
	for _, p := range concurrent {
		if DetectConflict(ops, p.Ops) {
			conflicting = append(conflicting, p)
		}
	}

	side := delta.Right // concurrent history is the already-applied left side
	if len(conflicting) > 0 {
		set := append(append([]TextOperation{}, conflicting...), incoming)
		res := ResolveConflict(set, ResolveContext{
			BaseContent:     doc.buf.String(),
			Priorities:      r.opts.Priorities,
			DocumentVersion: doc.version,
		})
		if !res.Resolved {
			return AppliedOp{}, &ConflictError{Conflicted: set}
		}
		// the conflicting operations are already in the content; what
		// we still apply is the incoming op rebased over them, with the
		// resolver's winner taking the insert tie-break
		if winner, ok := Winner(set, r.opts.Priorities); ok && winner == userID {
			side = delta.Left
		}
	}

	final := ops
	for _, p := range concurrent {
		rebased, err := delta.Transform(final, p.Ops, side)
		if err != nil {
			// pruned history: the client is too far behind to rebase
			return AppliedOp{}, fmt.Errorf("%w: %v", ErrRevisionConflict, err)
		}
		final = rebased
	}

	if err := doc.buf.Apply(final); err != nil {
		return AppliedOp{}, err
	}
	doc.version++
	doc.dirty = true

	applied := AppliedOp{
		OperationID: fmt.Sprintf("o-%d", now.UnixNano()),
		Revision:    doc.version,
		AuthorID:    userID,
		ClientID:    clientID,
		ClientSeq:   clientSeq,
		Ops:         final,
		AppliedAt:   now,
	}
	doc.pushRing(applied, r.opts.RingCapacity)
	doc.pushPending(TextOperation{UserID: userID, Timestamp: now, Ops: final, Revision: doc.version}, r.opts.HistoryDepth)
	if clientID != "" {
		doc.lastSeqByClient[clientID] = clientSeq
	}
	if p := doc.users[userID]; p != nil {
		p.LastActivity = now
	}
	return applied, nil
}

// concurrentSince flattens other users' pending operations newer than
// baseRevision, in arrival (revision) order.
func (d *document) concurrentSince(baseRevision uint64, excludeUser uint64) []TextOperation {
	var out []TextOperation
	for uid, list := range d.pending {
		if uid == excludeUser {
			continue
		}
		for _, p := range list {
			if p.Revision > baseRevision {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out
}

func (d *document) pushRing(op AppliedOp, capacity int) {
	if len(d.ring) >= capacity {
		copy(d.ring, d.ring[1:])
		d.ring = d.ring[:len(d.ring)-1]
	}
	d.ring = append(d.ring, op)
}

// pushPending appends to the user's history; past the cap the two
// oldest entries are composed into one, and simply dropped when other
// users' interleaved ops make them non-composable.
func (d *document) pushPending(op TextOperation, depth int) {
	list := append(d.pending[op.UserID], op)
	if len(list) > depth {
		if merged, err := delta.Compose(list[0].Ops, list[1].Ops); err == nil {
			list[1] = TextOperation{
				UserID:    op.UserID,
				Timestamp: list[1].Timestamp,
				Ops:       merged,
				Revision:  list[1].Revision,
			}
		}
		list = list[1:]
	}
	d.pending[op.UserID] = list
}

// OpsSince returns applied operations newer than fromRevision, capped
// at limit, for client catch-up after a reconnect. earliest is the
// oldest revision still retained in the ring; a caller whose
// fromRevision+1 is below it has a pruned gap and must re-open the file
// instead of applying the tail.
func (r *Registry) OpsSince(key DocKey, fromRevision uint64, limit int) (ops []AppliedOp, earliest uint64) {
	doc := r.lookup(key)
	if doc == nil {
		return nil, 0
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	if len(doc.ring) > 0 {
		earliest = doc.ring[0].Revision
	}
	for _, op := range doc.ring {
		if op.Revision > fromRevision {
			ops = append(ops, op)
			if limit > 0 && len(ops) >= limit {
				break
			}
		}
	}
	return ops, earliest
}

// UpdateCursor mutates only the caller's own presence entry.
func (r *Registry) UpdateCursor(key DocKey, userID uint64, c Cursor) error {
	return r.touchPresence(key, userID, func(p *UserPresence) { p.Cursor = c })
}

// UpdateSelection mutates only the caller's own presence entry.
func (r *Registry) UpdateSelection(key DocKey, userID uint64, sel SelectionRange) error {
	return r.touchPresence(key, userID, func(p *UserPresence) { p.Selection = sel })
}

// Touch refreshes the user's activity clock (heartbeats).
func (r *Registry) Touch(key DocKey, userID uint64) error {
	return r.touchPresence(key, userID, func(*UserPresence) {})
}

func (r *Registry) touchPresence(key DocKey, userID uint64, mutate func(*UserPresence)) error {
	doc := r.lookup(key)
	if doc == nil {
		return ErrDocumentNotOpen
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	p := doc.users[userID]
	if p == nil {
		return ErrDocumentNotOpen
	}
	mutate(p)
	p.LastActivity = time.Now()
	return nil
}

// ActiveUsers returns a copy of the document's presence map.
func (r *Registry) ActiveUsers(key DocKey) map[uint64]UserPresence {
	doc := r.lookup(key)
	if doc == nil {
		return nil
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return snapshotUsers(doc.users)
}

// DisconnectUser removes the user from every open document and returns
// the keys it was removed from, for user-left-file broadcasts.
func (r *Registry) DisconnectUser(userID uint64) []DocKey {
	r.mu.RLock()
	docs := make([]*document, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, d)
	}
	r.mu.RUnlock()

	var left []DocKey
	for _, doc := range docs {
		doc.mu.Lock()
		if _, ok := doc.users[userID]; ok {
			delete(doc.users, userID)
			left = append(left, doc.key)
			if len(doc.users) == 0 && doc.state == stateOpen {
				r.armEviction(doc)
			}
		}
		doc.mu.Unlock()
	}
	return left
}

// RefreshLocks replaces the document's cached lock-holder set from the
// external lock store.
func (r *Registry) RefreshLocks(ctx context.Context, key DocKey) error {
	doc := r.lookup(key)
	if doc == nil {
		return ErrDocumentNotOpen
	}
	holders, err := r.lockStore.Holders(ctx, key.ProjectID, key.FileID)
	if err != nil {
		return err
	}
	doc.mu.Lock()
	doc.locks = make(map[uint64]struct{}, len(holders))
	for _, h := range holders {
		doc.locks[h] = struct{}{}
	}
	doc.mu.Unlock()
	return nil
}

// FlushNow synchronously persists one document, bypassing the debounce;
// used for explicit save requests.
func (r *Registry) FlushNow(ctx context.Context, key DocKey) {
	r.flusher.Cancel(key)
	r.flushKey(ctx, key)
}

// SaveAll synchronously flushes every dirty document; used at shutdown.
func (r *Registry) SaveAll(ctx context.Context) {
	for _, key := range r.openKeys() {
		r.flusher.Cancel(key)
		r.flushKey(ctx, key)
	}
}

// Sweep purges stale presence and expired external locks. Advisory
// cleanup only; correctness never depends on it.
func (r *Registry) Sweep(ctx context.Context) {
	if n, err := r.lockStore.PurgeExpired(ctx); err != nil {
		log.Printf("lock sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("lock sweep purged %d expired locks", n)
	}

	cutoff := time.Now().Add(-r.opts.IdleThreshold)
	for _, key := range r.openKeys() {
		doc := r.lookup(key)
		if doc == nil {
			continue
		}
		if err := r.RefreshLocks(ctx, key); err != nil && !errors.Is(err, ErrDocumentNotOpen) {
			log.Printf("lock refresh failed doc=%s: %v", key, err)
		}
		doc.mu.Lock()
		for uid, p := range doc.users {
			if p.LastActivity.Before(cutoff) {
				delete(doc.users, uid)
			}
		}
		if len(doc.users) == 0 && doc.state == stateOpen {
			r.armEviction(doc)
		}
		doc.mu.Unlock()
	}
}

// DocumentInfo is the admin view of one open document.
type DocumentInfo struct {
	Key         DocKey `json:"key"`
	Version     uint64 `json:"version"`
	ActiveUsers int    `json:"activeUsers"`
	Dirty       bool   `json:"dirty"`
}

func (r *Registry) OpenDocuments() []DocumentInfo {
	keys := r.openKeys()
	out := make([]DocumentInfo, 0, len(keys))
	for _, key := range keys {
		doc := r.lookup(key)
		if doc == nil {
			continue
		}
		doc.mu.Lock()
		out = append(out, DocumentInfo{Key: key, Version: doc.version, ActiveUsers: len(doc.users), Dirty: doc.dirty})
		doc.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Close stops timers and flushes everything.
func (r *Registry) Close(ctx context.Context) {
	r.SaveAll(ctx)
	r.flusher.Stop()
	r.mu.RLock()
	for _, doc := range r.docs {
		doc.mu.Lock()
		if doc.evict != nil {
			doc.evict.Stop()
			doc.evict = nil
		}
		doc.mu.Unlock()
	}
	r.mu.RUnlock()
}

func (r *Registry) lookup(key DocKey) *document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.docs[key]
}

func (r *Registry) openKeys() []DocKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]DocKey, 0, len(r.docs))
	for k := range r.docs {
		keys = append(keys, k)
	}
	return keys
}

// getOrLoad fetches the document, loading content from the store on
// first open. The load runs without locks held; a racing open wins via
// the double-checked insert.
func (r *Registry) getOrLoad(ctx context.Context, key DocKey) (*document, error) {
	if doc := r.lookup(key); doc != nil {
		return doc, nil
	}
	content, version, err := r.contents.Get(ctx, key.ProjectID, key.FileID)
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", key, err)
	}
	fresh := &document{
		key:             key,
		buf:             NewPieceTable(content),
		version:         version,
		users:           make(map[uint64]*UserPresence),
		pending:         make(map[uint64][]TextOperation),
		locks:           make(map[uint64]struct{}),
		lastSeqByClient: make(map[string]uint64),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc := r.docs[key]; doc != nil {
		return doc, nil
	}
	r.docs[key] = fresh
	if r.lockStore != nil {
		go func() {
			if err := r.RefreshLocks(context.Background(), key); err != nil {
				log.Printf("initial lock refresh failed doc=%s: %v", key, err)
			}
		}()
	}
	return fresh, nil
}

// armEviction starts the grace timer. Caller holds doc.mu.
func (r *Registry) armEviction(doc *document) {
	doc.state = stateIdlePendingClose
	if doc.evict != nil {
		doc.evict.Stop()
	}
	doc.evict = time.AfterFunc(r.opts.GracePeriod, func() { r.evictIfIdle(doc.key) })
}

// evictIfIdle tears the document down if nobody re-joined during the
// grace period: final synchronous flush, then removal from memory.
func (r *Registry) evictIfIdle(key DocKey) {
	doc := r.lookup(key)
	if doc == nil {
		return
	}
	doc.mu.Lock()
	if doc.state != stateIdlePendingClose || len(doc.users) > 0 {
		doc.mu.Unlock()
		return
	}
	doc.mu.Unlock()

	r.flusher.Cancel(key)
	r.flushKey(context.Background(), key)

	// the flush ran with no locks held; a re-open meanwhile revives the
	// document and may already have applied acknowledged operations, so
	// re-verify before removing it from memory
	r.mu.Lock()
	doc.mu.Lock()
	if doc.state != stateIdlePendingClose || len(doc.users) > 0 || doc.dirty {
		doc.mu.Unlock()
		r.mu.Unlock()
		return
	}
	delete(r.docs, key)
	doc.mu.Unlock()
	r.mu.Unlock()
	log.Printf("document evicted doc=%s", key)
}

// flushNow is the debounce callback.
func (r *Registry) flushNow(key DocKey) {
	r.flushKey(context.Background(), key)
}

// flushKey writes the authoritative content through the content store
// and appends a snapshot. It copies state under the lock and does I/O
// outside it, so persistence never blocks live edits. Failures re-mark
// the document dirty and re-arm the debounce.
func (r *Registry) flushKey(ctx context.Context, key DocKey) {
	doc := r.lookup(key)
	if doc == nil {
		return
	}
	doc.mu.Lock()
	if !doc.dirty {
		doc.mu.Unlock()
		return
	}
	content := doc.buf.String()
	version := doc.version
	doc.dirty = false
	doc.mu.Unlock()

	if err := r.contents.Put(ctx, key.ProjectID, key.FileID, content, version); err != nil {
		log.Printf("content flush failed doc=%s rev=%d: %v", key, version, err)
		doc.mu.Lock()
		doc.dirty = true
		doc.mu.Unlock()
		r.flusher.Schedule(key)
		return
	}
	if r.snapshots != nil {
		if err := r.snapshots.SaveDocumentSnapshot(ctx, key.ProjectID, key.FileID, version, content); err != nil {
			log.Printf("snapshot failed doc=%s rev=%d: %v", key, version, err)
		}
	}
}

// emitApplied pushes the applied-op event and an activity record, both
// off the submit path's critical section and best-effort.
func (r *Registry) emitApplied(key DocKey, applied AppliedOp, baseRevision uint64) {
	if r.events != nil {
		evt := OpEvent{
			EventType:    "OP_APPLIED",
			ProjectID:    key.ProjectID,
			FileID:       key.FileID,
			OperationID:  applied.OperationID,
			Revision:     applied.Revision,
			AuthorID:     applied.AuthorID,
			ClientID:     applied.ClientID,
			ClientSeq:    applied.ClientSeq,
			BaseRevision: baseRevision,
			Ops:          applied.Ops,
			AppliedAt:    applied.AppliedAt,
		}
		if err := r.events.PublishOpApplied(context.Background(), evt); err != nil {
			log.Printf("op event enqueue failed doc=%s: %v", key, err)
		}
	}
	if r.activity != nil {
		go func() {
			err := r.activity.Record(context.Background(), key.ProjectID, applied.AuthorID,
				key.FileID, "edit", fmt.Sprintf("operation %s at revision %d", applied.OperationID, applied.Revision))
			if err != nil {
				log.Printf("activity record failed doc=%s: %v", key, err)
			}
		}()
	}
}

func snapshotUsers(users map[uint64]*UserPresence) map[uint64]UserPresence {
	out := make(map[uint64]UserPresence, len(users))
	for id, p := range users {
		out[id] = *p
	}
	return out
}
