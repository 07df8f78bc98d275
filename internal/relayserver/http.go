package relayserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"LiveTranslateRelay/internal/session"
)

// createSessionRequest 建会话请求体
type createSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// sessionDataResponse 会话快照响应：最近一次落库的语言集合与累计译文
type sessionDataResponse struct {
	Languages        []string          `json:"languages"`
	FullTranslations map[string]string `json:"fullTranslations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// handleCreateSession 创建空会话记录。id已存在时按空记录覆盖（幂等）。
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing sessionId"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Put(ctx, req.SessionID, session.NewRecord()); err != nil {
		log.Printf("Create session %s failed: %v", req.SessionID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Database error"})
		return
	}

	log.Printf("Session created: %s", req.SessionID)
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Session created successfully"})
}

// handleSessionData 读取会话快照。重连的监听端用它补回最新累计缓冲，
// 掉线期间错过的瞬时更新不补（有损语义）。
func (s *Server) handleSessionData(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing sessionId"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	record, ok, err := s.store.Get(ctx, sessionID)
	if err != nil {
		log.Printf("Load session %s failed: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Database error"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Session not found"})
		return
	}

	writeJSON(w, http.StatusOK, sessionDataResponse{
		Languages:        record.TargetLanguages,
		FullTranslations: record.FullTranslations,
	})
}

// handleHealth 存活检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStats 服务器统计信息
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":             s.isRunning.Load(),
		"uptime_seconds":      time.Since(s.startTime).Seconds(),
		"current_connections": s.connCount.Load(),
		"total_connections":   s.totalConnections.Load(),
		"total_messages":      s.totalMessages.Load(),
		"dropped_frames":      s.droppedFrames.Load(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Write response failed: %v", err)
	}
}
