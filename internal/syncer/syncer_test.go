package syncer

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stockpile-dev/stockpile/internal/catalog"
	"github.com/stockpile-dev/stockpile/internal/identity"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/remote"
	"github.com/stockpile-dev/stockpile/internal/store"
)

// fakeRemote is a failure-injecting Remote. The default behavior assigns
// sequential server ids on insert and echoes updates back.
type fakeRemote struct {
	mu      sync.Mutex
	nextID  int
	inserts int
	updates int
	deletes int

	insertErr error
	updateErr error
	deleteErr error

	// onInsert runs inside Insert, letting tests pause mid-drain.
	onInsert func()
}

func (f *fakeRemote) Insert(ctx context.Context, p *model.Product, idempotencyKey string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.onInsert != nil {
		f.onInsert()
	}
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	out := p.Clone()
	out.ID = fmt.Sprintf("%d", 41+f.nextID)
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, id string, p *model.Product) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	out := p.Clone()
	out.ID = id
	return out, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeRemote) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts, f.updates, f.deletes
}

type testEnv struct {
	store   *store.Store
	catalog *catalog.Service
	remote  *fakeRemote
	syncer  *Syncer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	quiet := log.New(io.Discard, "", 0)
	rem := &fakeRemote{}
	sy := New(st, identity.New(st), rem, quiet)
	sy.SetOnline(true)

	return &testEnv{
		store:   st,
		catalog: catalog.New(st, quiet),
		remote:  rem,
		syncer:  sy,
	}
}

// TestSyncAll_CreateReconciliation tests the provisional-to-real id swap
func TestSyncAll_CreateReconciliation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.catalog.Create(ctx, &model.Product{Name: "Widget", Quantity: 2})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	tempID := created.ID
	if !identity.IsProvisional(tempID) {
		t.Fatalf("Create() id = %q, want provisional", tempID)
	}

	res, err := env.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if !res.Ran || res.Synced != 1 {
		t.Fatalf("Result = %+v, want 1 synced", res)
	}

	// The provisional row is gone and the server record replaces it.
	if _, err := env.store.GetProduct(ctx, tempID); err == nil {
		t.Error("Provisional record still present after drain")
	}
	realID, ok, err := env.store.LookupMapping(ctx, tempID)
	if err != nil || !ok {
		t.Fatalf("LookupMapping() = (%v, %v), want hit", ok, err)
	}
	p, err := env.store.GetProduct(ctx, realID)
	if err != nil {
		t.Fatalf("GetProduct(%s) failed: %v", realID, err)
	}
	if p.SyncStatus != model.StatusSynced {
		t.Errorf("SyncStatus = %q, want synced", p.SyncStatus)
	}
	if p.Name != "Widget" {
		t.Errorf("Name = %q, want 'Widget'", p.Name)
	}

	pending, err := env.store.CountQueue(ctx, model.QueuePending)
	if err != nil {
		t.Fatalf("CountQueue() failed: %v", err)
	}
	if pending != 0 {
		t.Errorf("Pending count = %d, want 0", pending)
	}
}

// TestSyncAll_CreateThenUpdate tests creation-order draining with id
// resolution for the dependent update
func TestSyncAll_CreateThenUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.catalog.Create(ctx, &model.Product{Name: "Widget", Quantity: 2})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	created.Quantity = 7
	if _, err := env.catalog.Update(ctx, created); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	res, err := env.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if res.Synced != 2 || res.Skipped != 0 || res.Failed != 0 {
		t.Fatalf("Result = %+v, want 2 synced", res)
	}

	inserts, updates, _ := env.remote.counts()
	if inserts != 1 || updates != 1 {
		t.Errorf("Remote calls = %d inserts, %d updates; want 1 each", inserts, updates)
	}

	realID, _, err := env.store.LookupMapping(ctx, created.ID)
	if err != nil {
		t.Fatalf("LookupMapping() failed: %v", err)
	}
	p, err := env.store.GetProduct(ctx, realID)
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if p.Quantity != 7 {
		t.Errorf("Quantity = %d, want 7 from the update", p.Quantity)
	}

	products, err := env.store.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		t.Fatalf("ListProducts() failed: %v", err)
	}
	if len(products) != 1 {
		t.Errorf("ListProducts() returned %d rows, want 1", len(products))
	}
}

// TestSyncAll_UnresolvedReferenceSkipped tests that an update whose create
// has not drained is skipped with attempts untouched
func TestSyncAll_UnresolvedReferenceSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := &model.Product{
		ID: "local-orphan", Name: "Orphan", SyncStatus: model.StatusPending,
	}
	payload := &model.MutationPayload{ProductID: p.ID, Product: p}
	if _, err := env.store.Enqueue(ctx, "product", model.ActionUpdate, payload, ""); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	res, err := env.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("Result = %+v, want 1 skipped", res)
	}

	entries, err := env.store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Skipped entry left the queue: %v", entries)
	}
	if entries[0].Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 after a skip", entries[0].Attempts)
	}
}

// TestSyncAll_AttemptCeiling tests terminal failure after repeated rejections
func TestSyncAll_AttemptCeiling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.catalog.Create(ctx, &model.Product{Name: "Widget"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	env.remote.insertErr = &remote.RejectionError{StatusCode: 422, Message: "no"}

	for i := 0; i < model.MaxAttempts; i++ {
		res, err := env.syncer.SyncAll(ctx)
		if err != nil {
			t.Fatalf("SyncAll() %d failed: %v", i, err)
		}
		if res.Failed != 1 {
			t.Fatalf("Drain %d result = %+v, want 1 failed", i, res)
		}
	}

	failed, err := env.store.ListFailed(ctx)
	if err != nil {
		t.Fatalf("ListFailed() failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("ListFailed() returned %d, want 1", len(failed))
	}

	p, err := env.store.GetProduct(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if p.SyncStatus != model.StatusFailed {
		t.Errorf("SyncStatus = %q, want failed", p.SyncStatus)
	}

	notes, err := env.store.ListNotifications(ctx, false)
	if err != nil {
		t.Fatalf("ListNotifications() failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Type != model.NotifySyncFailed {
		t.Errorf("Notifications = %v, want one sync_failed", notes)
	}

	// Terminal entries are excluded from later drains.
	before, _, _ := env.remote.counts()
	res, err := env.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() after ceiling failed: %v", err)
	}
	if res.Synced+res.Failed+res.Skipped != 0 {
		t.Errorf("Post-ceiling result = %+v, want empty drain", res)
	}
	after, _, _ := env.remote.counts()
	if after != before {
		t.Errorf("Remote called for a terminal entry: %d -> %d", before, after)
	}
}

// TestSyncAll_IdempotentCreateReplay tests the crash window between remote
// success and queue cleanup: a recorded mapping suppresses the re-dispatch
func TestSyncAll_IdempotentCreateReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.catalog.Create(ctx, &model.Product{Name: "Widget"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// Simulate the crash: the remote insert happened and the mapping was
	// recorded, but the queue entry survived.
	if err := env.store.RecordMapping(ctx, created.ID, "42"); err != nil {
		t.Fatalf("RecordMapping() failed: %v", err)
	}

	// A fresh syncer over the same store stands in for the restart.
	restarted := New(env.store, identity.New(env.store), env.remote, log.New(io.Discard, "", 0))
	restarted.SetOnline(true)

	res, err := restarted.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if res.Synced != 1 {
		t.Fatalf("Result = %+v, want 1 synced", res)
	}

	inserts, _, _ := env.remote.counts()
	if inserts != 0 {
		t.Errorf("Remote Insert called %d times, want 0 on replay", inserts)
	}

	p, err := env.store.GetProduct(ctx, "42")
	if err != nil {
		t.Fatalf("GetProduct(42) failed: %v", err)
	}
	if p.SyncStatus != model.StatusSynced {
		t.Errorf("SyncStatus = %q, want synced", p.SyncStatus)
	}
	if _, err := env.store.GetProduct(ctx, created.ID); err == nil {
		t.Error("Provisional record still present after replay")
	}
}

// TestSyncAll_DeleteDrain tests that a tombstoned record is removed for good
func TestSyncAll_DeleteDrain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A synced record with a real id, as if fetched from the server.
	now := time.Now().UTC()
	p := &model.Product{
		ID: "42", Name: "Widget", SyncStatus: model.StatusSynced,
		CachedAt: now, UpdatedAt: now,
	}
	if err := env.store.PutProduct(ctx, p); err != nil {
		t.Fatalf("PutProduct() failed: %v", err)
	}
	if err := env.catalog.Delete(ctx, "42"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	res, err := env.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if res.Synced != 1 {
		t.Fatalf("Result = %+v, want 1 synced", res)
	}

	_, _, deletes := env.remote.counts()
	if deletes != 1 {
		t.Errorf("Remote deletes = %d, want 1", deletes)
	}

	if _, err := env.store.GetProduct(ctx, "42"); err == nil {
		t.Error("Record still visible after delete drained")
	}
	pending, err := env.store.CountQueue(ctx, model.QueuePending)
	if err != nil {
		t.Fatalf("CountQueue() failed: %v", err)
	}
	if pending != 0 {
		t.Errorf("Pending = %d, want 0", pending)
	}
}

// TestSyncAll_DeclineReasons tests offline, paused, and reentrancy guards
func TestSyncAll_DeclineReasons(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.syncer.SetOnline(false)
	res, err := env.syncer.SyncAll(ctx)
	if err != nil || res.Ran || res.Reason != ReasonOffline {
		t.Errorf("Offline result = %+v err=%v, want offline decline", res, err)
	}

	env.syncer.SetOnline(true)
	env.syncer.Pause()
	res, err = env.syncer.SyncAll(ctx)
	if err != nil || res.Ran || res.Reason != ReasonPaused {
		t.Errorf("Paused result = %+v err=%v, want paused decline", res, err)
	}
	env.syncer.Resume()

	if env.syncer.Paused() {
		t.Error("Paused() = true after Resume()")
	}
}

// TestSyncAll_PauseMidDrain tests suspension at the entry boundary
func TestSyncAll_PauseMidDrain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.catalog.Create(ctx, &model.Product{Name: fmt.Sprintf("P%d", i)}); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	// Pause during the first insert; the drain must stop before the second.
	env.remote.onInsert = func() { env.syncer.Pause() }

	res, err := env.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if res.Synced != 1 {
		t.Errorf("Synced = %d, want 1 before suspension", res.Synced)
	}

	pending, err := env.store.CountQueue(ctx, model.QueuePending)
	if err != nil {
		t.Fatalf("CountQueue() failed: %v", err)
	}
	if pending != 2 {
		t.Errorf("Pending = %d, want 2 left for the next drain", pending)
	}

	// Resuming lets a later drain pick up exactly where it stopped.
	env.remote.onInsert = nil
	env.syncer.Resume()
	res, err = env.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() after resume failed: %v", err)
	}
	if res.Synced != 2 {
		t.Errorf("Synced = %d after resume, want 2", res.Synced)
	}
}

// TestSubscribe_Events tests the lifecycle event stream
func TestSubscribe_Events(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.catalog.Create(ctx, &model.Product{Name: "Widget"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	id, events := env.syncer.Subscribe()
	defer env.syncer.Unsubscribe(id)

	if _, err := env.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}

	var types []EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}

	want := []EventType{EventSyncStart, EventProgress, EventSyncComplete}
	if len(types) != len(want) {
		t.Fatalf("Event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}
