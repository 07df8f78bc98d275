package store

import (
	"context"
	"sync"

	"LiveTranslateRelay/internal/session"
)

// SessionStore 持久化会话快照存储。中继服务器是唯一的读写方。
// Get返回记录不存在时ok=false；Put整条替换。
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Record, bool, error)
	Put(ctx context.Context, sessionID string, record *session.Record) error
	Close()
}

// MemoryStore 内存实现，用于测试和无数据库的本地运行
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Record
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session.Record),
	}
}

// Get 读取会话记录
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*session.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

// Put 整条替换会话记录
func (s *MemoryStore) Put(ctx context.Context, sessionID string, record *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = record.Clone()
	return nil
}

// Close 实现SessionStore接口，内存存储无需清理
func (s *MemoryStore) Close() {}
