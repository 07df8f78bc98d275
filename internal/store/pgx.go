package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"LiveTranslateRelay/internal/session"
)

// PgxConfig PostgreSQL连接配置
type PgxConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPgxConfig 默认配置
func DefaultPgxConfig() *PgxConfig {
	return &PgxConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "postgres",
		SSLMode: "disable",
	}
}

// DSN 拼接连接串
func (c *PgxConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id        TEXT PRIMARY KEY,
    languages         JSONB NOT NULL DEFAULT '[]',
    full_translations JSONB NOT NULL DEFAULT '{}',
    started           BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSession = `
INSERT INTO sessions (session_id, languages, full_translations, started, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (session_id) DO UPDATE SET
    languages         = EXCLUDED.languages,
    full_translations = EXCLUDED.full_translations,
    started           = EXCLUDED.started,
    updated_at        = now()`

const selectSession = `
SELECT languages, full_translations, started FROM sessions WHERE session_id = $1`

// PgxStore 基于pgx连接池的持久化会话存储
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore 连接PostgreSQL并初始化sessions表
func NewPgxStore(ctx context.Context, dsn string) (*PgxStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createSessionsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize sessions table: %w", err)
	}

	log.Println("PostgreSQL session store ready")
	return &PgxStore{pool: pool}, nil
}

// Get 读取会话记录
func (s *PgxStore) Get(ctx context.Context, sessionID string) (*session.Record, bool, error) {
	var (
		languagesJSON    []byte
		translationsJSON []byte
		started          bool
	)

	err := s.pool.QueryRow(ctx, selectSession, sessionID).
		Scan(&languagesJSON, &translationsJSON, &started)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query session %s failed: %w", sessionID, err)
	}

	record := session.NewRecord()
	record.Started = started
	if err := json.Unmarshal(languagesJSON, &record.TargetLanguages); err != nil {
		return nil, false, fmt.Errorf("decode languages for %s failed: %w", sessionID, err)
	}
	if err := json.Unmarshal(translationsJSON, &record.FullTranslations); err != nil {
		return nil, false, fmt.Errorf("decode translations for %s failed: %w", sessionID, err)
	}

	return record, true, nil
}

// Put 整条替换会话记录（upsert，对应原实现的INSERT OR REPLACE语义）
func (s *PgxStore) Put(ctx context.Context, sessionID string, record *session.Record) error {
	languagesJSON, err := json.Marshal(record.TargetLanguages)
	if err != nil {
		return fmt.Errorf("encode languages for %s failed: %w", sessionID, err)
	}
	translationsJSON, err := json.Marshal(record.FullTranslations)
	if err != nil {
		return fmt.Errorf("encode translations for %s failed: %w", sessionID, err)
	}

	_, err = s.pool.Exec(ctx, upsertSession,
		sessionID, languagesJSON, translationsJSON, record.Started)
	if err != nil {
		return fmt.Errorf("persist session %s failed: %w", sessionID, err)
	}
	return nil
}

// Close 关闭连接池
func (s *PgxStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Stat 连接池统计信息
func (s *PgxStore) Stat() *pgxpool.Stat {
	if s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}
