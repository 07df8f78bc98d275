package playback

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveTranslateRelay/internal/speech"
)

// TestSequentialPlayback 第N+1项在第N项完成回调触发前绝不开始
func TestSequentialPlayback(t *testing.T) {
	synth := speech.NewManualSynthesizer()
	queue := NewQueue(synth)
	defer queue.Close()

	queue.Enqueue(Item{Text: "hola", LanguageCode: "es"})
	queue.Enqueue(Item{Text: "bonjour", LanguageCode: "fr"})

	// 第一项开始播放
	require.Eventually(t, synth.HasPending, time.Second, 10*time.Millisecond,
		"first item should start playing")

	calls := synth.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hola", calls[0].Text)
	assert.Equal(t, 1, queue.Len(), "second item must stay queued")

	// 完成第一项之前第二项绝不能开始
	time.Sleep(100 * time.Millisecond)
	require.Len(t, synth.Calls(), 1, "bonjour must not start before hola completes")

	require.True(t, synth.CompleteNext(nil, time.Second))

	require.Eventually(t, func() bool {
		return len(synth.Calls()) == 2
	}, time.Second, 10*time.Millisecond, "second item should start after first completes")

	calls = synth.Calls()
	assert.Equal(t, "bonjour", calls[1].Text)
	assert.Equal(t, "fr", calls[1].LanguageCode)

	require.True(t, synth.CompleteNext(nil, time.Second))
	require.Eventually(t, func() bool {
		return !queue.InFlight() && queue.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

// TestEnqueueOrderUnderBurst N次密集入队恰好N次调用且按入队顺序
func TestEnqueueOrderUnderBurst(t *testing.T) {
	synth := speech.NewStubSynthesizer()
	queue := NewQueue(synth)
	defer queue.Close()

	const n = 50
	for i := 0; i < n; i++ {
		queue.Enqueue(Item{Text: fmt.Sprintf("utterance-%03d", i), LanguageCode: "fr"})
	}

	require.Eventually(t, func() bool {
		return len(synth.Calls()) == n && !queue.InFlight()
	}, 5*time.Second, 10*time.Millisecond)

	calls := synth.Calls()
	require.Len(t, calls, n, "exactly one invocation per enqueue")
	for i, call := range calls {
		assert.Equal(t, fmt.Sprintf("utterance-%03d", i), call.Text,
			"invocations must follow enqueue order")
	}
}

// TestFailureAdvancesQueue 单项失败按完成处理，队列推进不停住
func TestFailureAdvancesQueue(t *testing.T) {
	synth := speech.NewStubSynthesizer()
	synth.FailFor = map[string]error{"broken": errors.New("synthesis exploded")}
	queue := NewQueue(synth)
	defer queue.Close()

	queue.Enqueue(Item{Text: "broken", LanguageCode: "fr"})
	queue.Enqueue(Item{Text: "after", LanguageCode: "fr"})

	require.Eventually(t, func() bool {
		return len(synth.Calls()) == 2
	}, time.Second, 10*time.Millisecond, "queue must advance past the failed item")

	calls := synth.Calls()
	assert.Equal(t, "broken", calls[0].Text)
	assert.Equal(t, "after", calls[1].Text)
}

// TestEnqueueNeverBlocks 播放在途时入队立即返回
func TestEnqueueNeverBlocks(t *testing.T) {
	synth := speech.NewManualSynthesizer()
	queue := NewQueue(synth)
	defer queue.Close()

	queue.Enqueue(Item{Text: "first", LanguageCode: "en"})
	require.Eventually(t, synth.HasPending, time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			queue.Enqueue(Item{Text: "more", LanguageCode: "en"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked while playback was in flight")
	}

	assert.Equal(t, 100, queue.Len())
	synth.CompleteNext(nil, time.Second)
}

// TestCloseStopsNewPlayback 关停后不再启动新的播放
func TestCloseStopsNewPlayback(t *testing.T) {
	synth := speech.NewStubSynthesizer()
	synth.PlaybackDelay = 20 * time.Millisecond
	queue := NewQueue(synth)

	queue.Enqueue(Item{Text: "one", LanguageCode: "en"})
	queue.Close()
	queue.Enqueue(Item{Text: "two", LanguageCode: "en"})

	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, len(synth.Calls()), 1)
}
