package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tracko/tracko-web/internal/model"
)

// mockProfileStore はProfileStoreのモック実装。
type mockProfileStore struct {
	ensureFunc            func(ctx context.Context, uid string) error
	findByUIDFunc         func(ctx context.Context, uid string) (*model.Profile, error)
	incrementCategoryFunc func(ctx context.Context, uid, category string, minutes int64) error
}

func (m *mockProfileStore) Ensure(ctx context.Context, uid string) error {
	if m.ensureFunc != nil {
		return m.ensureFunc(ctx, uid)
	}
	return nil
}

func (m *mockProfileStore) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	if m.findByUIDFunc != nil {
		return m.findByUIDFunc(ctx, uid)
	}
	return model.NewProfile(uid), nil
}

func (m *mockProfileStore) IncrementCategory(ctx context.Context, uid, category string, minutes int64) error {
	if m.incrementCategoryFunc != nil {
		return m.incrementCategoryFunc(ctx, uid, category, minutes)
	}
	return nil
}

func recvSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("snapshot channel closed unexpectedly")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestWatcherDeliversInitialSnapshot(t *testing.T) {
	store := &mockProfileStore{
		findByUIDFunc: func(ctx context.Context, uid string) (*model.Profile, error) {
			p := model.NewProfile(uid)
			p.TotalTime = 42
			return p, nil
		},
	}

	w := newWatcher(store, "u1", time.Hour)
	defer w.Stop()

	snap := recvSnapshot(t, w.Snapshots())
	if snap.Err != nil {
		t.Fatalf("snapshot error: %v", snap.Err)
	}
	if snap.Profile == nil || snap.Profile.TotalTime != 42 {
		t.Errorf("snapshot profile = %+v, want TotalTime 42", snap.Profile)
	}
}

func TestWatcherDeliversUpdatesInPollOrder(t *testing.T) {
	var total atomic.Int64
	store := &mockProfileStore{
		findByUIDFunc: func(ctx context.Context, uid string) (*model.Profile, error) {
			p := model.NewProfile(uid)
			p.TotalTime = total.Add(1)
			return p, nil
		},
	}

	w := newWatcher(store, "u1", 10*time.Millisecond)
	defer w.Stop()

	// 最新優先配送なので単調増加だけを確認する
	prev := int64(0)
	for i := 0; i < 3; i++ {
		snap := recvSnapshot(t, w.Snapshots())
		if snap.Err != nil {
			t.Fatalf("snapshot error: %v", snap.Err)
		}
		if snap.Profile.TotalTime <= prev {
			t.Errorf("snapshot %d TotalTime = %d, want > %d", i, snap.Profile.TotalTime, prev)
		}
		prev = snap.Profile.TotalTime
	}
}

func TestWatcherSurfacesPollErrors(t *testing.T) {
	pollErr := errors.New("store unavailable")
	store := &mockProfileStore{
		findByUIDFunc: func(ctx context.Context, uid string) (*model.Profile, error) {
			return nil, pollErr
		},
	}

	w := newWatcher(store, "u1", time.Hour)
	defer w.Stop()

	snap := recvSnapshot(t, w.Snapshots())
	if !errors.Is(snap.Err, pollErr) {
		t.Errorf("snapshot error = %v, want store error", snap.Err)
	}
	if snap.Profile != nil {
		t.Errorf("snapshot profile = %+v, want nil on error", snap.Profile)
	}
}

func TestWatcherStopClosesStream(t *testing.T) {
	store := &mockProfileStore{}

	w := newWatcher(store, "u1", 10*time.Millisecond)
	w.Stop()
	w.Stop() // 冪等

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-w.Snapshots():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("snapshot channel was not closed after Stop")
		}
	}
}
