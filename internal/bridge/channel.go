package bridge

import (
	"log/slog"
	"sync"
)

// Envelope はチャネル上を流れるメッセージに送信元オリジンを付与したもの。
// オリジンは受信側の検査にのみ使い、送信側が任意に主張できる値ではなく
// チャネルが送信時に刻印する。
type Envelope struct {
	Origin  string
	Message Message
}

const subscriberBuffer = 16

// Channel はページスコープのブロードキャストバス。
// 投函されたメッセージは送信者自身を含む全購読者に配送される。
// 配送順序は投函順を保つが、購読者のバッファが溢れた場合その購読者
// へのメッセージは破棄される。
type Channel struct {
	mu     sync.Mutex
	subs   map[int]chan Envelope
	nextID int
	closed bool
}

// NewChannel は新しいブロードキャストチャネルを生成する。
func NewChannel() *Channel {
	return &Channel{
		subs: make(map[int]chan Envelope),
	}
}

// Post はメッセージを全購読者にブロードキャストする。
// origin には送信元のオリジンを指定する。
func (c *Channel) Post(origin string, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	env := Envelope{Origin: origin, Message: msg}
	for id, sub := range c.subs {
		select {
		case sub <- env:
		default:
			slog.Warn("bridge channel subscriber buffer full, dropping message",
				"subscriber_id", id,
				"message_type", string(msg.Type()))
		}
	}
}

// Subscribe は配送チャネルと購読解除関数を返す。
// 購読解除は冪等で、解除後の配送チャネルはクローズされる。
func (c *Channel) Subscribe() (<-chan Envelope, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Envelope, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close は全購読を解除しチャネルを閉じる。以降のPostは無視される。
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
}
