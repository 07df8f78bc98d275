package session

import (
	"LiveTranslateRelay/internal/protocol"
)

// Record 会话的持久化状态：目标语言集合 + 每种语言的累计译文缓冲区。
// 缓冲区只追加；语言从TargetLanguages移除后缓冲区仍然保留，
// 直到整条记录被删除或替换。
type Record struct {
	TargetLanguages  []string          `json:"languages"`
	FullTranslations map[string]string `json:"fullTranslations"`
	Started          bool              `json:"started"`
}

// NewRecord 创建空会话记录（空语言集合、空缓冲区）
func NewRecord() *Record {
	return &Record{
		TargetLanguages:  []string{},
		FullTranslations: map[string]string{},
	}
}

// Clone 深拷贝记录，避免调用方共享内部map
func (r *Record) Clone() *Record {
	clone := &Record{
		TargetLanguages:  make([]string, len(r.TargetLanguages)),
		FullTranslations: make(map[string]string, len(r.FullTranslations)),
		Started:          r.Started,
	}
	copy(clone.TargetLanguages, r.TargetLanguages)
	for lang, text := range r.FullTranslations {
		clone.FullTranslations[lang] = text
	}
	return clone
}

// Apply 把一条中继消息合并进记录。合并规则按字段出现与否分派：
//   - languages出现 → 整体替换TargetLanguages
//   - fullTranslations出现 → 对每种语言追加"\n"+增量（唯一的追加式合并）
//   - sessionStarted出现 → 替换Started
//
// 其余字段（transcription/translations）是瞬时显示状态，不进持久化记录。
func (r *Record) Apply(msg *protocol.Message) {
	if msg.Languages != nil {
		langs := make([]string, len(msg.Languages))
		copy(langs, msg.Languages)
		r.TargetLanguages = langs
	}

	for lang, delta := range msg.FullTranslations {
		if delta == "" {
			continue
		}
		r.FullTranslations[lang] = r.FullTranslations[lang] + "\n" + delta
	}

	if msg.SessionStarted != nil {
		r.Started = *msg.SessionStarted
	}
}
