// Package remotetest provides an in-memory remote for tests.
package remotetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"docsync/internal/common/errs"
	"docsync/internal/features/remote"
	"docsync/pkg/fixer"
)

// Call records one write sent to the fake.
type Call struct {
	Op         remote.Operation
	Collection string
	IDs        []int64
	UID        int64
}

// FakeClient stores documents in memory. With Async set, writes stay
// enqueued until Complete is called, like Meilisearch; otherwise they are
// applied and succeed immediately, like the SQL table remote.
type FakeClient struct {
	Async bool
	// Fail is consulted before every write; a non-nil error is returned as is.
	Fail func(op remote.Operation, ids []int64) error
	// FetchErr is returned by FetchByIDs when set.
	FetchErr error

	mu      sync.Mutex
	docs    map[string]map[int64]fixer.Document
	tasks   map[int64]*fakeTask
	nextUID int64
	calls   []Call
}

type fakeTask struct {
	status remote.Status
	detail string
	apply  func()
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		docs:    make(map[string]map[int64]fixer.Document),
		tasks:   make(map[int64]*fakeTask),
		nextUID: 100,
	}
}

func (f *FakeClient) Kind() remote.Kind { return remote.KindMeilisearch }

func (f *FakeClient) SubmitBatch(_ context.Context, coll remote.Collection, op remote.Operation, docs []fixer.Document) (*remote.Handle, error) {
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		id, ok := remote.DocumentID(d, coll.PrimaryKey)
		if !ok {
			return nil, errs.New(errs.IncompleteDocument, "document without %s", coll.PrimaryKey)
		}
		ids = append(ids, id)
	}
	if f.Fail != nil {
		if err := f.Fail(op, ids); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enqueue(op, coll.Name, ids, func() {
		store := f.collection(coll.Name)
		for i, d := range docs {
			store[ids[i]] = d
		}
	}), nil
}

func (f *FakeClient) DeleteBatch(_ context.Context, coll remote.Collection, ids []int64) (*remote.Handle, error) {
	if f.Fail != nil {
		if err := f.Fail(remote.OpDelete, ids); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enqueue(remote.OpDelete, coll.Name, ids, func() {
		store := f.collection(coll.Name)
		for _, id := range ids {
			delete(store, id)
		}
	}), nil
}

func (f *FakeClient) FetchByIDs(_ context.Context, coll remote.Collection, ids []int64) (map[int64]fixer.Document, error) {
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	found := make(map[int64]fixer.Document)
	store := f.collection(coll.Name)
	for _, id := range ids {
		if d, ok := store[id]; ok {
			found[id] = d
		}
	}
	return found, nil
}

func (f *FakeClient) GetOperationStatus(_ context.Context, uid int64) (remote.Status, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[uid]
	if !ok {
		return "", "", errs.New(errs.NotFound, "task %d", uid)
	}
	return t.status, t.detail, nil
}

// Complete settles an async task. Succeeded tasks apply their write.
func (f *FakeClient) Complete(uid int64, status remote.Status, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[uid]
	if !ok {
		return
	}
	if status == remote.StatusSucceeded && !t.status.Terminal() {
		t.apply()
	}
	t.status = status
	t.detail = detail
}

// Put stores a document directly, as if written by another system.
func (f *FakeClient) Put(collection string, id int64, doc fixer.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection(collection)[id] = doc
}

// IDs lists the stored ids of a collection in ascending order.
func (f *FakeClient) IDs(collection string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.collection(collection) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Calls returns the writes received so far.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeClient) enqueue(op remote.Operation, coll string, ids []int64, apply func()) *remote.Handle {
	f.nextUID++
	uid := f.nextUID
	f.calls = append(f.calls, Call{Op: op, Collection: coll, IDs: ids, UID: uid})

	t := &fakeTask{status: remote.StatusEnqueued, apply: apply}
	if !f.Async {
		apply()
		t.status = remote.StatusSucceeded
	}
	f.tasks[uid] = t
	return &remote.Handle{UID: uid, Status: t.status, EnqueuedAt: time.Now().UTC()}
}

func (f *FakeClient) collection(name string) map[int64]fixer.Document {
	store, ok := f.docs[name]
	if !ok {
		store = make(map[int64]fixer.Document)
		f.docs[name] = store
	}
	return store
}
