// Package session はサインインのライフサイクルをプロフィールの
// 初期化・ライブ購読・拡張機能ハンドシェイクに結び付けるコントローラを
// 提供する。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tracko/tracko-web/internal/model"
)

// Snapshot はライブ購読が配送するプロフィールの観測値。
// Errが非nilの場合、そのポーリングは失敗しておりProfileは前回値ではなくnil。
// 値は結果整合的なスナップショットであり、ローカル書き込み直後の
// 権威的な値として扱ってはならない。
type Snapshot struct {
	Profile *model.Profile
	Err     error
}

// ProfileStore はコントローラが必要とするプロフィール永続化操作。
// repository.ProfileRepositoryがこれを満たす。
type ProfileStore interface {
	Ensure(ctx context.Context, uid string) error
	FindByUID(ctx context.Context, uid string) (*model.Profile, error)
	IncrementCategory(ctx context.Context, uid, category string, minutes int64) error
}

// Watcher は1ユーザーのプロフィールドキュメントをポーリングし、
// スナップショットの無限ストリームとして配送する。
// 購読者が追いつかない場合は古いスナップショットを捨て最新を優先する。
type Watcher struct {
	store    ProfileStore
	uid      string
	interval time.Duration

	out  chan Snapshot
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

// NewWatcher は指定uidのプロフィール購読を開始する。
// 通常はControllerが管理するが、SSE配信のように購読単体が必要な
// 場面では直接生成できる。
func NewWatcher(store ProfileStore, uid string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return newWatcher(store, uid, interval)
}

func newWatcher(store ProfileStore, uid string, interval time.Duration) *Watcher {
	w := &Watcher{
		store:    store,
		uid:      uid,
		interval: interval,
		out:      make(chan Snapshot, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Snapshots はスナップショットの配送チャネルを返す。
// チャネルはウォッチャ停止時にクローズされる。
func (w *Watcher) Snapshots() <-chan Snapshot {
	return w.out
}

// Stop はポーリングを停止し配送チャネルをクローズする。冪等。
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.out)

	// 購読確立直後に初回スナップショットを配送する
	w.poll()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	profile, err := w.store.FindByUID(ctx, w.uid)
	if err != nil {
		slog.Error("profile watch poll failed", "error", err)
		w.deliver(Snapshot{Err: err})
		return
	}
	w.deliver(Snapshot{Profile: profile})
}

// deliver は最新優先でスナップショットを配送する。
// バッファが埋まっている場合は古い値を捨てる。
func (w *Watcher) deliver(snap Snapshot) {
	for {
		select {
		case w.out <- snap:
			return
		default:
			select {
			case <-w.out:
			default:
			}
		}
	}
}
