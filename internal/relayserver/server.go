package relayserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"LiveTranslateRelay/internal/protocol"
	"LiveTranslateRelay/internal/session"
	"LiveTranslateRelay/internal/store"
)

// ServerConfig 中继服务器配置
type ServerConfig struct {
	Addr            string
	ReadBufferSize  int
	WriteBufferSize int
	MaxConnections  int
	// SendQueueSize 每连接出站缓冲大小；缓冲满时该连接丢帧，绝不阻塞广播
	SendQueueSize int
	WriteTimeout  time.Duration
	ReadLimit     int64
}

// DefaultServerConfig 返回默认配置
func DefaultServerConfig(addr string) *ServerConfig {
	return &ServerConfig{
		Addr:            addr,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxConnections:  1000,
		SendQueueSize:   64,
		WriteTimeout:    5 * time.Second,
		ReadLimit:       512 * 1024,
	}
}

// Connection 一条中继连接。连接不绑定会话：广播发给所有其他连接，
// 各端自行按sessionId过滤。出站走缓冲通道，由writePump串行写出。
type Connection struct {
	ID   string
	Conn *websocket.Conn

	send      chan []byte
	stopChan  chan struct{}
	closeOnce sync.Once

	MessagesReceived atomic.Uint64
	MessagesSent     atomic.Uint64
	MessagesDropped  atomic.Uint64
}

// safeClose 安全关闭连接的stopChan
func (c *Connection) safeClose() {
	c.closeOnce.Do(func() {
		close(c.stopChan)
	})
}

// Server 会话中继服务器：接收任一连接的消息，合并进会话存储，
// 再原样广播给其余所有连接。同时承载会话快照的HTTP读写接口。
type Server struct {
	config   *ServerConfig
	store    store.SessionStore
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	// 连接管理
	connections sync.Map // map[string]*Connection
	connCount   atomic.Int32
	connWg      sync.WaitGroup

	// 每会话合并串行化：同一会话的合并严格按接收顺序落库
	sessionMu sync.Mutex
	sessions  map[string]*sync.Mutex

	isRunning atomic.Bool

	// 统计信息
	totalConnections atomic.Uint64
	totalMessages    atomic.Uint64
	droppedFrames    atomic.Uint64
	startTime        time.Time
}

// New 创建中继服务器
func New(config *ServerConfig, sessionStore store.SessionStore) *Server {
	if config == nil {
		config = DefaultServerConfig(":8080")
	}

	server := &Server{
		config: config,
		store:  sessionStore,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // 会话id即路由键，不做来源校验
			},
		},
		sessions:  make(map[string]*sync.Mutex),
		startTime: time.Now(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", server.handleWebSocket)
	router.HandleFunc("/api/create-session", server.handleCreateSession).Methods("POST")
	router.HandleFunc("/api/session-data", server.handleSessionData).Methods("GET")
	router.HandleFunc("/healthz", server.handleHealth).Methods("GET")
	router.HandleFunc("/stats", server.handleStats).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server.server = &http.Server{
		Handler:      c.Handler(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Start 启动服务器
func (s *Server) Start() error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.isRunning.Store(false)
		return fmt.Errorf("listen on %s failed: %w", s.config.Addr, err)
	}
	s.listener = listener

	log.Printf("Starting relay server on %s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Relay server error: %v", err)
		}
	}()

	return nil
}

// Addr 实际监听地址（Addr配置为:0时有用）
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown 关闭服务器：断开所有连接并等待处理goroutine退出
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(true, false) {
		return nil
	}

	log.Printf("Shutting down relay server...")

	s.connections.Range(func(key, value interface{}) bool {
		conn := value.(*Connection)
		s.closeConnection(conn, "Server shutdown")
		return true
	})

	s.connWg.Wait()

	return s.server.Shutdown(ctx)
}

// handleWebSocket 升级并注册一条新的匿名连接
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.connCount.Load() >= int32(s.config.MaxConnections) {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	connID := fmt.Sprintf("conn_%d_%d", time.Now().UnixNano(), s.totalConnections.Add(1))
	conn := &Connection{
		ID:       connID,
		Conn:     wsConn,
		send:     make(chan []byte, s.config.SendQueueSize),
		stopChan: make(chan struct{}),
	}

	s.connections.Store(connID, conn)
	s.connCount.Add(1)

	log.Printf("New connection: %s from %s", connID, r.RemoteAddr)

	s.connWg.Add(2)
	go s.writePump(conn)
	s.readLoop(conn)
}

// readLoop 读取循环：解析每一帧并交给handleFrame。
// 解析失败只丢这一帧，连接保持打开。
func (s *Server) readLoop(conn *Connection) {
	defer func() {
		s.closeConnection(conn, "Connection ended")
		s.connWg.Done()
	}()

	conn.Conn.SetReadLimit(s.config.ReadLimit)

	for {
		select {
		case <-conn.stopChan:
			return
		default:
			_, rawData, err := conn.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("Connection read error: %v", err)
				}
				return
			}

			conn.MessagesReceived.Add(1)
			s.totalMessages.Add(1)

			s.handleFrame(conn, rawData)
		}
	}
}

// handleFrame 处理一帧：ping只回发送者；缺sessionId丢弃；
// 其余先合并落库再原样广播给其他连接。
func (s *Server) handleFrame(conn *Connection, rawData []byte) {
	msg, err := protocol.Decode(rawData)
	if err != nil {
		log.Printf("Drop malformed frame from %s: %v", conn.ID, err)
		return
	}

	if msg.IsPing() {
		s.sendPong(conn)
		return
	}

	if !msg.HasSession() {
		log.Printf("Drop frame without sessionId from %s", conn.ID)
		return
	}

	// 先持久化再广播。落库失败只记录：实时广播路径优先于快照路径。
	if err := s.mergeAndPersist(msg); err != nil {
		log.Printf("Persist session %s failed, broadcasting anyway: %v", msg.SessionID, err)
	}

	s.broadcast(conn, rawData)
}

// mergeAndPersist 把消息合并进会话记录并落库。
// 同一会话持锁串行，保证合并按接收顺序生效；不同会话互不阻塞。
func (s *Server) mergeAndPersist(msg *protocol.Message) error {
	lock := s.sessionLock(msg.SessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record, ok, err := s.store.Get(ctx, msg.SessionID)
	if err != nil {
		return fmt.Errorf("load session failed: %w", err)
	}
	if !ok {
		record = session.NewRecord()
	}

	record.Apply(msg)

	return s.store.Put(ctx, msg.SessionID, record)
}

// sessionLock 取出或创建一个会话的合并锁
func (s *Server) sessionLock(sessionID string) *sync.Mutex {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	lock, ok := s.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.sessions[sessionID] = lock
	}
	return lock
}

// broadcast 把原始帧广播给除发送者外的所有连接。
// 发送走每连接缓冲通道：缓冲满则对该连接丢帧，广播循环从不阻塞。
func (s *Server) broadcast(sender *Connection, frame []byte) {
	s.connections.Range(func(key, value interface{}) bool {
		conn := value.(*Connection)
		if conn == sender {
			return true
		}

		select {
		case conn.send <- frame:
		default:
			conn.MessagesDropped.Add(1)
			s.droppedFrames.Add(1)
			log.Printf("Send queue full, dropping frame for %s", conn.ID)
		}
		return true
	})
}

// sendPong 只应答发送者，不广播，不触碰会话存储
func (s *Server) sendPong(conn *Connection) {
	frame, err := protocol.Pong().Encode()
	if err != nil {
		log.Printf("Encode pong failed: %v", err)
		return
	}

	select {
	case conn.send <- frame:
	default:
		conn.MessagesDropped.Add(1)
	}
}

// writePump 串行写出一条连接的出站帧。写失败只降级这一条连接。
func (s *Server) writePump(conn *Connection) {
	defer s.connWg.Done()

	for {
		select {
		case <-conn.stopChan:
			return
		case frame := <-conn.send:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("Write to %s failed: %v", conn.ID, err)
				s.closeConnection(conn, "Write failed")
				return
			}
			conn.MessagesSent.Add(1)
		}
	}
}

// closeConnection 注销并关闭连接，无持久化副作用
func (s *Server) closeConnection(conn *Connection, reason string) {
	if _, loaded := s.connections.LoadAndDelete(conn.ID); loaded {
		s.connCount.Add(-1)
	}

	conn.safeClose()

	conn.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	conn.Conn.Close()

	log.Printf("Connection closed: %s, reason: %s", conn.ID, reason)
}

// ConnectionCount 当前连接数
func (s *Server) ConnectionCount() int {
	return int(s.connCount.Load())
}

// Store 服务器使用的会话存储
func (s *Server) Store() store.SessionStore {
	return s.store
}
