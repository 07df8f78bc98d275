package playback

import (
	"context"
	"log"
	"sync"

	"LiveTranslateRelay/internal/speech"
)

// Item 一个合成-播放工作单元，入队后不可变，按FIFO精确消费一次
type Item struct {
	Text         string
	LanguageCode string
}

// Queue 严格串行的播放队列：任意时刻最多一个合成/播放操作在途，
// 第N+1项在第N项的完成回调触发之前绝不开始。Enqueue从不阻塞。
// 单项失败记录日志后视作完成，队列继续推进而不是停住。
type Queue struct {
	synth speech.Synthesizer

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	items    []Item
	inFlight bool
}

// NewQueue 创建播放队列
func NewQueue(synth speech.Synthesizer) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		synth:  synth,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue 追加到队尾并触发一次排空。从不阻塞调用方。
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.drain()
}

// drain 排空步骤：没有在途播放且队列非空时弹出队首开始播放。
// 每次入队后和每次播放完成后各调用一次。
func (q *Queue) drain() {
	q.mu.Lock()
	if q.inFlight || len(q.items) == 0 || q.ctx.Err() != nil {
		q.mu.Unlock()
		return
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.inFlight = true
	q.mu.Unlock()

	go func() {
		if err := q.synth.Speak(q.ctx, item.Text, item.LanguageCode); err != nil {
			// 失败按完成处理：丢掉这一句比让整个会话的下游停住要好
			log.Printf("Playback failed for %q (%s), advancing: %v",
				item.Text, item.LanguageCode, err)
		}

		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()

		q.drain()
	}()
}

// Len 当前排队项数（不含在途项）
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InFlight 是否有在途播放
func (q *Queue) InFlight() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Close 本地关停：取消在途播放，不再启动新的播放
func (q *Queue) Close() {
	q.cancel()
}
