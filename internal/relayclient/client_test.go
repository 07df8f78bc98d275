package relayclient

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveTranslateRelay/internal/protocol"
	"LiveTranslateRelay/internal/relayserver"
	"LiveTranslateRelay/internal/store"
)

// startRelay 起一个内存存储的中继服务器
func startRelay(t *testing.T, addr string) *relayserver.Server {
	t.Helper()

	server := relayserver.New(relayserver.DefaultServerConfig(addr), store.NewMemoryStore())
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		server.Shutdown(context.Background())
	})
	return server
}

// TestConnectAndSend 基本连接和发送
func TestConnectAndSend(t *testing.T) {
	server := startRelay(t, "127.0.0.1:0")

	client := New(DefaultClientConfig(fmt.Sprintf("ws://%s/ws", server.Addr())))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	assert.Equal(t, StateConnected, client.State())
	require.NoError(t, client.Send(&protocol.Message{SessionID: "abc", Transcription: "hi"}))
}

// TestConnectTwiceRejected 非断开状态不允许再次Connect
func TestConnectTwiceRejected(t *testing.T) {
	server := startRelay(t, "127.0.0.1:0")

	client := New(DefaultClientConfig(fmt.Sprintf("ws://%s/ws", server.Addr())))
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	assert.Error(t, client.Connect(ctx))
}

// TestInboundDispatch 入站广播送达消息处理器，pong不往上送
func TestInboundDispatch(t *testing.T) {
	server := startRelay(t, "127.0.0.1:0")
	url := fmt.Sprintf("ws://%s/ws", server.Addr())

	receiver := New(DefaultClientConfig(url))
	receiver.config.KeepaliveInterval = 50 * time.Millisecond

	var mu sync.Mutex
	var received []*protocol.Message
	receiver.SetMessageHandler(func(msg *protocol.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, receiver.Connect(ctx))
	defer receiver.Close()

	sender := New(DefaultClientConfig(url))
	require.NoError(t, sender.Connect(ctx))
	defer sender.Close()

	require.NoError(t, sender.Send(&protocol.Message{SessionID: "abc", Transcription: "hello"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// 保活应答在客户端内部消化，处理器只看到业务消息
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, msg := range received {
		assert.NotEqual(t, protocol.TypePong, msg.Type)
		assert.Equal(t, "abc", msg.SessionID)
	}
}

// TestKeepaliveAnsweredByServer 保活ping发出后连接保持CONNECTED
func TestKeepaliveAnsweredByServer(t *testing.T) {
	server := startRelay(t, "127.0.0.1:0")

	config := DefaultClientConfig(fmt.Sprintf("ws://%s/ws", server.Addr()))
	config.KeepaliveInterval = 50 * time.Millisecond
	client := New(config)

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	// 跨越多个保活周期后连接依然健在
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, StateConnected, client.State())
}

// TestReconnectAfterServerRestart 服务器重启后固定间隔重连成功
func TestReconnectAfterServerRestart(t *testing.T) {
	server := relayserver.New(relayserver.DefaultServerConfig("127.0.0.1:0"), store.NewMemoryStore())
	require.NoError(t, server.Start())
	addr := server.Addr()

	config := DefaultClientConfig(fmt.Sprintf("ws://%s/ws", addr))
	config.ReconnectInterval = 100 * time.Millisecond
	client := New(config)

	var mu sync.Mutex
	var transitions []ClientState
	client.SetStateChangeHandler(func(oldState, newState ClientState) {
		mu.Lock()
		transitions = append(transitions, newState)
		mu.Unlock()
	})

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	// 停掉服务器触发掉线，再在同一地址拉起来
	require.NoError(t, server.Shutdown(context.Background()))

	require.Eventually(t, func() bool {
		return client.State() == StateReconnecting
	}, 3*time.Second, 20*time.Millisecond, "client should notice the drop")

	restarted := relayserver.New(relayserver.DefaultServerConfig(addr), store.NewMemoryStore())
	require.NoError(t, restarted.Start())
	defer restarted.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		return client.State() == StateConnected
	}, 5*time.Second, 50*time.Millisecond, "client should reconnect with fixed delay")

	assert.Equal(t, 1, client.Reconnects())
	require.NoError(t, client.Send(&protocol.Message{SessionID: "abc", Transcription: "back"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, transitions, StateReconnecting)
	assert.Equal(t, StateConnected, transitions[len(transitions)-1])
}

// TestCloseIsTerminal 关停后不再重连
func TestCloseIsTerminal(t *testing.T) {
	server := startRelay(t, "127.0.0.1:0")

	client := New(DefaultClientConfig(fmt.Sprintf("ws://%s/ws", server.Addr())))
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateClosed, client.State())
	assert.Error(t, client.Send(&protocol.Message{SessionID: "abc"}))
}
