package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypePing 保活探测消息类型，只回给发送者，绝不广播
const TypePing = "ping"

// TypePong 对ping的应答消息类型
const TypePong = "pong"

var (
	// ErrMalformed 无法解析的帧（可恢复，记录后丢弃）
	ErrMalformed = errors.New("malformed relay message")
	// ErrMissingSession 缺少路由键sessionId（协议违规，丢弃）
	ErrMissingSession = errors.New("relay message missing sessionId")
)

// Message 中继消息，单个JSON对象占一帧。
// 除sessionId（路由键）外所有字段可选；合并规则由字段是否出现决定，
// 而不是由type标签决定。
type Message struct {
	Type             string            `json:"type,omitempty"`
	SessionID        string            `json:"sessionId,omitempty"`
	Transcription    string            `json:"transcription,omitempty"`
	Translations     map[string]string `json:"translations,omitempty"`
	FullTranslations map[string]string `json:"fullTranslations,omitempty"`
	Languages        []string          `json:"languages,omitempty"`
	SessionStarted   *bool             `json:"sessionStarted,omitempty"`
	IsComplete       bool              `json:"isComplete,omitempty"`
}

// Decode 解析一帧中继消息
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &msg, nil
}

// Encode 序列化一帧中继消息
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal relay message failed: %w", err)
	}
	return data, nil
}

// IsPing 是否为保活探测帧
func (m *Message) IsPing() bool {
	return m.Type == TypePing
}

// HasSession 是否携带路由键
func (m *Message) HasSession() bool {
	return m.SessionID != ""
}

// Pong 构造对ping的应答帧
func Pong() *Message {
	return &Message{Type: TypePong}
}

// Ping 构造保活探测帧
func Ping() *Message {
	return &Message{Type: TypePing}
}

// Bool 返回指向b的指针，用于填充可选布尔字段
func Bool(b bool) *bool {
	return &b
}
