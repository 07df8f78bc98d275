package relayclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"LiveTranslateRelay/internal/protocol"
)

// ClientState 客户端连接状态
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MessageHandler 入站中继消息处理器
type MessageHandler func(msg *protocol.Message)

// StateChangeHandler 状态变化处理器。重连成功后扬声端靠它重新
// 广播languages/累计状态（重同步是扬声端的职责，不是中继的）。
type StateChangeHandler func(oldState, newState ClientState)

// ClientConfig 客户端配置
type ClientConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	KeepaliveInterval time.Duration
	// ReconnectInterval 固定重连间隔。按原实现取平直5秒，不做指数退避。
	ReconnectInterval time.Duration
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		ReconnectInterval: 5 * time.Second,
	}
}

// Client 中继客户端：维持一条到中继服务器的逻辑连接，
// 带保活ping和固定间隔自动重连。掉线期间错过的广播不回放。
type Client struct {
	config *ClientConfig
	dialer *websocket.Dialer
	conn   *websocket.Conn
	state  atomic.Int32

	onMessage     MessageHandler
	onStateChange StateChangeHandler

	mu            sync.RWMutex
	writeMu       sync.Mutex // WebSocket写入串行化
	stopChan      chan struct{}
	stopOnce      sync.Once
	reconnectChan chan struct{}

	reconnects atomic.Int32
}

// New 创建中继客户端
func New(config *ClientConfig) *Client {
	if config == nil {
		panic("config cannot be nil")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout

	client := &Client{
		config:        config,
		dialer:        &dialer,
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}

	client.setState(StateDisconnected)
	return client
}

// SetMessageHandler 设置入站消息处理器
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

// SetStateChangeHandler 设置状态变化处理器
func (c *Client) SetStateChangeHandler(handler StateChangeHandler) {
	c.onStateChange = handler
}

// Connect 连接到中继服务器并启动后台任务
func (c *Client) Connect(ctx context.Context) error {
	if !c.compareAndSwapState(StateDisconnected, StateConnecting) {
		return errors.New("client is not in disconnected state")
	}

	if err := c.doConnect(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateConnected)

	go c.keepaliveLoop()
	go c.readLoop()
	go c.reconnectLoop()

	return nil
}

// doConnect 执行实际的连接逻辑
func (c *Client) doConnect(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	return nil
}

// Close 显式本地关停，状态机唯一的终止入口
func (c *Client) Close() error {
	if !c.compareAndSwapState(StateConnected, StateClosed) &&
		!c.compareAndSwapState(StateReconnecting, StateClosed) &&
		!c.compareAndSwapState(StateDisconnected, StateClosed) {
		return nil // 已经关闭
	}

	c.stopOnce.Do(func() {
		close(c.stopChan)
	})

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}

	return nil
}

// Send 发送一条中继消息
func (c *Client) Send(msg *protocol.Message) error {
	if c.getState() != StateConnected {
		return errors.New("client is not connected")
	}

	frame, err := msg.Encode()
	if err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.New("connection is nil")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// keepaliveLoop 保活循环：固定间隔发送{"type":"ping"}
func (c *Client) keepaliveLoop() {
	ticker := time.NewTicker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			if c.getState() != StateConnected {
				continue
			}
			if err := c.Send(protocol.Ping()); err != nil {
				log.Printf("Send keepalive failed: %v", err)
				c.triggerReconnect()
			}
		}
	}
}

// readLoop 消息读取循环
func (c *Client) readLoop() {
	for {
		select {
		case <-c.stopChan:
			return
		default:
			if c.getState() != StateConnected {
				time.Sleep(100 * time.Millisecond)
				continue
			}

			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}

			_, rawData, err := conn.ReadMessage()
			if err != nil {
				if c.getState() == StateClosed {
					return
				}
				log.Printf("Read message failed: %v", err)
				c.triggerReconnect()
				continue
			}

			msg, err := protocol.Decode(rawData)
			if err != nil {
				log.Printf("Drop malformed inbound frame: %v", err)
				continue
			}

			c.handleMessage(msg)
		}
	}
}

// handleMessage 分发入站消息。pong只用于保活，不往上送。
func (c *Client) handleMessage(msg *protocol.Message) {
	if msg.Type == protocol.TypePong {
		return
	}

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// reconnectLoop 重连循环
func (c *Client) reconnectLoop() {
	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
			c.doReconnect()
		}
	}
}

// triggerReconnect 触发重连
func (c *Client) triggerReconnect() {
	if c.getState() == StateConnected {
		c.setState(StateReconnecting)
		select {
		case c.reconnectChan <- struct{}{}:
		default:
		}
	}
}

// doReconnect 固定间隔重试直到连上或客户端关停
func (c *Client) doReconnect() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	policy := backoff.WithContext(
		backoff.NewConstantBackOff(c.config.ReconnectInterval), ctx)

	err := backoff.Retry(func() error {
		log.Printf("Reconnecting to %s...", c.config.URL)
		return c.doConnect(ctx)
	}, policy)

	if err != nil {
		log.Printf("Reconnect aborted: %v", err)
		c.setState(StateDisconnected)
		return
	}

	if !c.compareAndSwapState(StateReconnecting, StateConnected) {
		// 重连期间客户端被关停，放弃刚建好的连接
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		return
	}

	log.Printf("Reconnected successfully")
	c.reconnects.Add(1)
}

// getState 获取当前状态
func (c *Client) getState() ClientState {
	return ClientState(c.state.Load())
}

// State 当前连接状态
func (c *Client) State() ClientState {
	return c.getState()
}

// setState 设置状态
func (c *Client) setState(newState ClientState) {
	oldState := ClientState(c.state.Swap(int32(newState)))
	if oldState != newState && c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
}

// compareAndSwapState 原子性状态切换
func (c *Client) compareAndSwapState(oldState, newState ClientState) bool {
	swapped := c.state.CompareAndSwap(int32(oldState), int32(newState))
	if swapped && c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
	return swapped
}

// Reconnects 重连成功次数
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}
