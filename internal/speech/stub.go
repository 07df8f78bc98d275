package speech

import (
	"context"
	"sync"
	"time"
)

// StubSynthesizer 测试/演示用合成器：按文本长度模拟播放时长，
// 记录每次调用顺序。完成可由外部接管（ManualCompletion）以精确
// 控制回调时序。
type StubSynthesizer struct {
	// PlaybackDelay 每次Speak模拟的播放时长；0则立即完成
	PlaybackDelay time.Duration
	// FailFor 在这些文本上返回错误，模拟合成失败
	FailFor map[string]error

	mu      sync.Mutex
	calls   []StubCall
	manual  bool
	pending chan chan error
}

// StubCall 一次Speak调用的记录
type StubCall struct {
	Text         string
	LanguageCode string
}

// NewStubSynthesizer 创建立即完成的stub合成器
func NewStubSynthesizer() *StubSynthesizer {
	return &StubSynthesizer{}
}

// NewManualSynthesizer 创建手动完成模式的stub合成器：
// 每次Speak阻塞直到测试调用CompleteNext。
func NewManualSynthesizer() *StubSynthesizer {
	return &StubSynthesizer{
		manual:  true,
		pending: make(chan chan error, 64),
	}
}

// Speak 记录调用并模拟播放，直到播放完成才返回
func (s *StubSynthesizer) Speak(ctx context.Context, text, languageCode string) error {
	s.mu.Lock()
	s.calls = append(s.calls, StubCall{Text: text, LanguageCode: languageCode})
	failErr := s.FailFor[text]
	s.mu.Unlock()

	if failErr != nil {
		return failErr
	}

	if s.manual {
		done := make(chan error)
		select {
		case s.pending <- done:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.PlaybackDelay > 0 {
		select {
		case <-time.After(s.PlaybackDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// CompleteNext 完成最早一次挂起的Speak调用（手动模式）。
// 在timeout内没有挂起的调用则返回false。
func (s *StubSynthesizer) CompleteNext(err error, timeout time.Duration) bool {
	select {
	case done := <-s.pending:
		done <- err
		return true
	case <-time.After(timeout):
		return false
	}
}

// HasPending 是否有挂起的Speak调用（手动模式）
func (s *StubSynthesizer) HasPending() bool {
	return len(s.pending) > 0
}

// Calls 返回已记录的调用快照
func (s *StubSynthesizer) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]StubCall, len(s.calls))
	copy(calls, s.calls)
	return calls
}
