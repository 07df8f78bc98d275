// Package loadtest 对中继服务器做广播扇出压测：一个扬声端连接以固定
// 速率发布定稿消息，N个监听端连接统计收到的广播和端到端延迟。
package loadtest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"LiveTranslateRelay/internal/protocol"
)

// FanoutConfig 扇出压测配置
type FanoutConfig struct {
	// URL 中继服务器的WebSocket地址
	URL string
	// SessionID 压测会话ID
	SessionID string
	// Listeners 监听端连接数
	Listeners int
	// MessageRate 扬声端每秒发布的消息数
	MessageRate int
	// Duration 压测时长
	Duration time.Duration
	// HandshakeTimeout 连接建立超时
	HandshakeTimeout time.Duration
}

// DefaultFanoutConfig 默认扇出压测配置
func DefaultFanoutConfig(url string) *FanoutConfig {
	return &FanoutConfig{
		URL:              url,
		SessionID:        "loadtest",
		Listeners:        50,
		MessageRate:      10,
		Duration:         10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// FanoutResult 扇出压测结果
type FanoutResult struct {
	// 发布侧
	MessagesSent int64
	SendErrors   int64

	// 接收侧（所有监听端合计）
	MessagesReceived int64
	ExpectedReceived int64
	DeliveryRate     float64

	// 端到端延迟（发布到监听端收到），毫秒
	MinLatency float64
	MaxLatency float64
	AvgLatency float64
	P50Latency float64
	P95Latency float64
	P99Latency float64

	Duration time.Duration
}

// String 人类可读的结果摘要
func (r *FanoutResult) String() string {
	return fmt.Sprintf(
		"sent=%d sendErrors=%d received=%d/%d (%.1f%%) latency avg=%.2fms p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms duration=%s",
		r.MessagesSent, r.SendErrors, r.MessagesReceived, r.ExpectedReceived,
		r.DeliveryRate*100, r.AvgLatency, r.P50Latency, r.P95Latency, r.P99Latency,
		r.MaxLatency, r.Duration.Round(time.Millisecond))
}

// FanoutTester 扇出压测器
type FanoutTester struct {
	config *FanoutConfig

	sent       atomic.Int64
	sendErrors atomic.Int64
	received   atomic.Int64

	latencies []time.Duration
	latencyMu sync.Mutex
}

// NewFanoutTester 创建扇出压测器
func NewFanoutTester(config *FanoutConfig) *FanoutTester {
	return &FanoutTester{config: config}
}

// Run 执行压测直到时长结束或ctx取消，返回汇总结果
func (t *FanoutTester) Run(ctx context.Context) (*FanoutResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.config.Duration)
	defer cancel()

	dialer := &websocket.Dialer{HandshakeTimeout: t.config.HandshakeTimeout}

	// 先起监听端，保证扬声端的每一条广播都有完整观众
	var listenerWg sync.WaitGroup
	listenerConns := make([]*websocket.Conn, 0, t.config.Listeners)
	for i := 0; i < t.config.Listeners; i++ {
		conn, resp, err := dialer.Dial(t.config.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			for _, open := range listenerConns {
				open.Close()
			}
			return nil, fmt.Errorf("dial listener %d: %w", i, err)
		}
		listenerConns = append(listenerConns, conn)

		listenerWg.Add(1)
		go func(conn *websocket.Conn) {
			defer listenerWg.Done()
			t.listenLoop(conn)
		}(conn)
	}

	speakerConn, resp, err := dialer.Dial(t.config.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		for _, open := range listenerConns {
			open.Close()
		}
		return nil, fmt.Errorf("dial speaker: %w", err)
	}

	// 等全部连接在服务器侧注册完毕再开始发布
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	t.publishLoop(runCtx, speakerConn)
	elapsed := time.Since(start)

	// 给最后一批广播留出在途时间
	time.Sleep(500 * time.Millisecond)

	speakerConn.Close()
	for _, conn := range listenerConns {
		conn.Close()
	}
	listenerWg.Wait()

	return t.buildResult(elapsed), nil
}

// publishLoop 按目标速率发布定稿消息，消息文本携带发布时间戳
func (t *FanoutTester) publishLoop(ctx context.Context, conn *websocket.Conn) {
	interval := time.Second / time.Duration(t.config.MessageRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := &protocol.Message{
				SessionID:  t.config.SessionID,
				IsComplete: true,
				FullTranslations: map[string]string{
					"fr": strconv.FormatInt(time.Now().UnixNano(), 10),
				},
			}
			frame, err := msg.Encode()
			if err != nil {
				t.sendErrors.Add(1)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.sendErrors.Add(1)
				log.Printf("Loadtest publish failed: %v", err)
				return
			}
			t.sent.Add(1)
		}
	}
}

// listenLoop 统计一条监听端连接收到的广播
func (t *FanoutTester) listenLoop(conn *websocket.Conn) {
	for {
		_, rawData, err := conn.ReadMessage()
		if err != nil {
			return
		}
		receivedAt := time.Now()

		msg, err := protocol.Decode(rawData)
		if err != nil || msg.SessionID != t.config.SessionID {
			continue
		}
		t.received.Add(1)

		stamp := msg.FullTranslations["fr"]
		sentNanos, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		latency := receivedAt.Sub(time.Unix(0, sentNanos))

		t.latencyMu.Lock()
		t.latencies = append(t.latencies, latency)
		t.latencyMu.Unlock()
	}
}

// buildResult 汇总统计，计算延迟分位数
func (t *FanoutTester) buildResult(elapsed time.Duration) *FanoutResult {
	result := &FanoutResult{
		MessagesSent:     t.sent.Load(),
		SendErrors:       t.sendErrors.Load(),
		MessagesReceived: t.received.Load(),
		ExpectedReceived: t.sent.Load() * int64(t.config.Listeners),
		Duration:         elapsed,
	}
	if result.ExpectedReceived > 0 {
		result.DeliveryRate = float64(result.MessagesReceived) / float64(result.ExpectedReceived)
	}

	t.latencyMu.Lock()
	latencies := make([]time.Duration, len(t.latencies))
	copy(latencies, t.latencies)
	t.latencyMu.Unlock()

	if len(latencies) == 0 {
		return result
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var total time.Duration
	for _, latency := range latencies {
		total += latency
	}

	toMillis := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	result.MinLatency = toMillis(latencies[0])
	result.MaxLatency = toMillis(latencies[len(latencies)-1])
	result.AvgLatency = toMillis(total / time.Duration(len(latencies)))
	result.P50Latency = toMillis(latencies[len(latencies)*50/100])
	result.P95Latency = toMillis(latencies[len(latencies)*95/100])
	result.P99Latency = toMillis(latencies[len(latencies)*99/100])
	return result
}
