package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State はハンドシェイクの状態を表す。タブ(=Handshakeインスタンス)ごとに独立。
type State string

const (
	StateDisconnected  State = "DISCONNECTED"
	StateAwaitingToken State = "AWAITING_TOKEN"
	StateTokenSent     State = "TOKEN_SENT"
	StateConnected     State = "CONNECTED"
	StateValidating    State = "VALIDATING"
	StateValid         State = "VALID"
	StateInvalid       State = "INVALID"
)

// DefaultTimeout は拡張機能からの応答待ちの既定タイムアウト。
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotSignedIn はサインインしていないユーザーが接続を試みた場合のエラー。
	ErrNotSignedIn = errors.New("sign-in required before connecting")
	// ErrTimeout は拡張機能が期限内に応答しなかった場合のエラー。
	ErrTimeout = errors.New("timed out waiting for extension response")
	// ErrClosed はクローズ済みのハンドシェイクに対する操作のエラー。
	ErrClosed = errors.New("handshake is closed")
	// ErrNotConnected は未接続状態での検証要求のエラー。
	ErrNotConnected = errors.New("not connected")
)

// HandshakeError は拡張機能がsuccess:falseで応答した場合のエラー。
// メッセージは拡張機能が返したものをそのままユーザーに提示する。
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("extension rejected handshake: %s", e.Reason)
}

// TokenSource は接続時に中継するトークンを取得する。
type TokenSource func(ctx context.Context, uid string) (string, error)

// Event は状態遷移ごとにUIへ通知されるイベント。
// Errは失敗遷移の場合のユーザー向けメッセージで、成功時は空。
type Event struct {
	State State
	Err   string
}

// Recorder はハンドシェイクの計測フック。nil実装を許容する。
type Recorder interface {
	// RecordHandshake は接続試行の結果を記録する。
	RecordHandshake(outcome string)
	// RecordValidation は検証試行の結果を記録する。
	RecordValidation(outcome string)
	// RecordForeignDrop は期待外オリジンからのメッセージ破棄を記録する。
	RecordForeignDrop()
}

// HandshakeConfig はハンドシェイクの設定。
type HandshakeConfig struct {
	// ExpectedOrigin は受理するメッセージの送信元オリジン。
	// これ以外のオリジンからのメッセージは黙って破棄される。
	ExpectedOrigin string
	// Timeout は応答待ちの上限。ゼロならDefaultTimeout。
	Timeout time.Duration
	// OnChange は状態遷移ごとに呼ばれる通知コールバック。nil可。
	OnChange func(Event)
	// Metrics は計測フック。nil可。
	Metrics Recorder
}

// Handshake は1タブ分の認証ハンドシェイク状態機械。
//
// Connect/Validateの各試行は専用の購読を張り、最初に受理した応答で
// 購読を解除する。受理済みの試行に遅れて届いた応答は誰にも配送されず、
// UI更新を再発火させない。
type Handshake struct {
	channel  *Channel
	origin   string
	timeout  time.Duration
	onChange func(Event)
	metrics  Recorder

	mu     sync.Mutex
	state  State
	closed bool
	done   chan struct{}
}

// NewHandshake は初期状態DISCONNECTEDのハンドシェイクを生成する。
func NewHandshake(channel *Channel, cfg HandshakeConfig) *Handshake {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handshake{
		channel:  channel,
		origin:   cfg.ExpectedOrigin,
		timeout:  timeout,
		onChange: cfg.OnChange,
		metrics:  cfg.Metrics,
		state:    StateDisconnected,
		done:     make(chan struct{}),
	}
}

// State は現在の状態を返す。
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// transition は状態を更新し通知コールバックを呼ぶ。
// コールバックはロック外で呼ぶ。
func (h *Handshake) transition(to State, errMsg string) {
	h.mu.Lock()
	h.state = to
	cb := h.onChange
	h.mu.Unlock()

	if cb != nil {
		cb(Event{State: to, Err: errMsg})
	}
}

func (h *Handshake) recordHandshake(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordHandshake(outcome)
	}
}

func (h *Handshake) recordValidation(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordValidation(outcome)
	}
}

// Connect は接続ハンドシェイクを実行する。
// DISCONNECTED以外の状態からの呼び出しは無操作(nil)で返す。
// サインイン済みユーザーのuidを要求し、TokenSourceで得たトークンを
// AUTH_TOKENとしてブロードキャストし、応答を待つ。
func (h *Handshake) Connect(ctx context.Context, uid string, source TokenSource) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.state != StateDisconnected {
		// 接続処理中または接続済みの再クリックは無操作
		h.mu.Unlock()
		return nil
	}
	if uid == "" {
		h.mu.Unlock()
		h.transition(StateDisconnected, "Please sign in first")
		h.recordHandshake("not_signed_in")
		return ErrNotSignedIn
	}
	h.state = StateAwaitingToken
	h.mu.Unlock()

	token, err := source(ctx, uid)
	if err != nil {
		h.transition(StateDisconnected, "Failed to obtain token")
		h.recordHandshake("token_error")
		return fmt.Errorf("failed to obtain token: %w", err)
	}

	corrID := uuid.New().String()
	sub, cancel := h.channel.Subscribe()
	defer cancel()

	h.transition(StateTokenSent, "")
	h.channel.Post(h.origin, AuthToken{CorrelationID: corrID, Token: token})

	resp, err := await(h, ctx, sub, corrID, func(m Message) (AuthResponse, bool) {
		r, ok := m.(AuthResponse)
		return r, ok
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrClosed):
		return err
	case errors.Is(err, ErrTimeout):
		h.transition(StateDisconnected, "No response from extension")
		h.recordHandshake("timeout")
		return err
	default:
		h.transition(StateDisconnected, "")
		h.recordHandshake("canceled")
		return err
	}

	if !resp.Success {
		h.transition(StateDisconnected, resp.Error)
		h.recordHandshake("rejected")
		return &HandshakeError{Reason: resp.Error}
	}

	h.transition(StateConnected, "")
	h.recordHandshake("connected")
	return nil
}

// Validate は接続検証を実行する。CONNECTEDまたは過去の検証結果
// (VALID/INVALID)からのみ呼び出せる。成否を返し、検証手続き自体が
// 完了しなかった場合のみエラーを返す。
func (h *Handshake) Validate(ctx context.Context) (bool, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false, ErrClosed
	}
	switch h.state {
	case StateConnected, StateValid, StateInvalid:
	default:
		h.mu.Unlock()
		return false, ErrNotConnected
	}
	h.state = StateValidating
	h.mu.Unlock()

	corrID := uuid.New().String()
	sub, cancel := h.channel.Subscribe()
	defer cancel()

	h.transition(StateValidating, "")
	h.channel.Post(h.origin, ValidateConnection{CorrelationID: corrID})

	resp, err := await(h, ctx, sub, corrID, func(m Message) (ValidateResponse, bool) {
		r, ok := m.(ValidateResponse)
		return r, ok
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrClosed):
		return false, err
	case errors.Is(err, ErrTimeout):
		h.transition(StateInvalid, "No response from extension")
		h.recordValidation("timeout")
		return false, err
	default:
		h.transition(StateInvalid, "")
		h.recordValidation("canceled")
		return false, err
	}

	if !resp.Success {
		h.transition(StateInvalid, resp.Error)
		h.recordValidation("invalid")
		return false, nil
	}

	h.transition(StateValid, "")
	h.recordValidation("valid")
	return true, nil
}

// await は期待オリジン・相関ID・型が一致する最初の応答を待つ。
// 一致しないメッセージはログにも残さず破棄する(オリジン不一致は
// 計測のみ)。タイムアウト・コンテキスト取消・クローズで中断する。
func await[T Message](h *Handshake, ctx context.Context, sub <-chan Envelope, corrID string, match func(Message) (T, bool)) (T, error) {
	var zero T
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	for {
		select {
		case env, ok := <-sub:
			if !ok {
				return zero, ErrClosed
			}
			if env.Origin != h.origin {
				if h.metrics != nil {
					h.metrics.RecordForeignDrop()
				}
				continue
			}
			resp, ok := match(env.Message)
			if !ok {
				continue
			}
			if resp.Correlation() != corrID {
				slog.Debug("dropping response for stale handshake",
					"message_type", string(resp.Type()))
				continue
			}
			return resp, nil
		case <-timer.C:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-h.done:
			return zero, ErrClosed
		}
	}
}

// Close はハンドシェイクを破棄し、応答待ち中の操作を中断する。
// タブを閉じる/ページ遷移に相当する。冪等。
func (h *Handshake) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.state = StateDisconnected
	close(h.done)
}
