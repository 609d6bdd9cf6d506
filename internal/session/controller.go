package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tracko/tracko-web/internal/bridge"
	"github.com/tracko/tracko-web/internal/model"
)

// ErrSignedOut はサインアウト状態でユーザー固有の操作を行った場合のエラー。
var ErrSignedOut = errors.New("no user is signed in")

// DefaultWatchInterval はプロフィール購読の既定ポーリング間隔。
const DefaultWatchInterval = 2 * time.Second

// ControllerConfig はコントローラの設定。
type ControllerConfig struct {
	// ExpectedOrigin はブリッジメッセージを受理する唯一のオリジン。
	ExpectedOrigin string
	// HandshakeTimeout は拡張機能の応答待ちの上限。ゼロなら既定値。
	HandshakeTimeout time.Duration
	// WatchInterval はプロフィール購読のポーリング間隔。ゼロなら既定値。
	WatchInterval time.Duration
	// OnBridgeEvent はハンドシェイク状態遷移の通知先。nil可。
	OnBridgeEvent func(bridge.Event)
	// Metrics はブリッジ計測フック。nil可。
	Metrics bridge.Recorder
}

// Controller はサインイン状態・プロフィール初期化・ライブ購読・
// 拡張機能ハンドシェイクを束ねる。1タブにつき1インスタンス。
type Controller struct {
	store   ProfileStore
	channel *bridge.Channel
	tokens  bridge.TokenSource
	cfg     ControllerConfig

	mu        sync.Mutex
	uid       string
	watcher   *Watcher
	handshake *bridge.Handshake
	closed    bool
}

// NewController はコントローラを生成する。
// tokens はブリッジ接続時に中継するトークンの供給源で、通常は
// MintClient.TokenSource()を渡す。
func NewController(store ProfileStore, channel *bridge.Channel, tokens bridge.TokenSource, cfg ControllerConfig) *Controller {
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
	return &Controller{
		store:   store,
		channel: channel,
		tokens:  tokens,
		cfg:     cfg,
	}
}

// SignIn はサインイン成功を通知する。プロフィールドキュメントを
// 初期化(既存は上書きしない)した上でライブ購読を開始し、
// スナップショットの配送チャネルを返す。
// 同一uidでの再サインインは既存の購読をそのまま返し、重複購読を作らない。
// 別uidへの切り替えは古い購読を破棄して張り直す。
func (c *Controller) SignIn(ctx context.Context, uid string) (<-chan Snapshot, error) {
	if uid == "" {
		return nil, fmt.Errorf("sign-in requires a uid")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("controller is closed")
	}

	if err := c.store.Ensure(ctx, uid); err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}

	if c.uid == uid && c.watcher != nil {
		return c.watcher.Snapshots(), nil
	}

	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.uid = uid
	c.watcher = newWatcher(c.store, uid, c.cfg.WatchInterval)
	slog.Info("profile subscription established", "uid", uid)
	return c.watcher.Snapshots(), nil
}

// SignOut はライブ購読とハンドシェイクを破棄しサインアウト状態に戻す。
// サインアウト済みなら無操作。
func (c *Controller) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Controller) teardownLocked() {
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	if c.handshake != nil {
		c.handshake.Close()
		c.handshake = nil
	}
	c.uid = ""
}

// UID は現在サインイン中のuidを返す。サインアウト状態なら空文字列。
func (c *Controller) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// ConnectExtension は拡張機能との接続ハンドシェイクを実行する。
// サインインが必要。ハンドシェイクは初回接続時に生成され、
// 切断後の再試行では同じインスタンスを再利用する。
func (c *Controller) ConnectExtension(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("controller is closed")
	}
	uid := c.uid
	if c.handshake == nil {
		c.handshake = bridge.NewHandshake(c.channel, bridge.HandshakeConfig{
			ExpectedOrigin: c.cfg.ExpectedOrigin,
			Timeout:        c.cfg.HandshakeTimeout,
			OnChange:       c.cfg.OnBridgeEvent,
			Metrics:        c.cfg.Metrics,
		})
	}
	h := c.handshake
	c.mu.Unlock()

	return h.Connect(ctx, uid, c.tokens)
}

// ValidateExtension は接続済みハンドシェイクの検証を実行する。
func (c *Controller) ValidateExtension(ctx context.Context) (bool, error) {
	c.mu.Lock()
	h := c.handshake
	c.mu.Unlock()

	if h == nil {
		return false, bridge.ErrNotConnected
	}
	return h.Validate(ctx)
}

// BridgeState は現在のハンドシェイク状態を返す。
func (c *Controller) BridgeState() bridge.State {
	c.mu.Lock()
	h := c.handshake
	c.mu.Unlock()

	if h == nil {
		return bridge.StateDisconnected
	}
	return h.State()
}

// Profile は現在のユーザーのプロフィールを取得する。
func (c *Controller) Profile(ctx context.Context) (*model.Profile, error) {
	uid := c.UID()
	if uid == "" {
		return nil, ErrSignedOut
	}
	return c.store.FindByUID(ctx, uid)
}

// IncrementCategory は現在のユーザーの指定カテゴリと合計時間を
// 同じ加算量で原子的に加算する。
func (c *Controller) IncrementCategory(ctx context.Context, category string, minutes int64) error {
	uid := c.UID()
	if uid == "" {
		return ErrSignedOut
	}
	return c.store.IncrementCategory(ctx, uid, category, minutes)
}

// Close はタブを閉じる操作に相当する。購読とハンドシェイクを全て解放する。冪等。
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.teardownLocked()
}
