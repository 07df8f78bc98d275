package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveTranslateRelay/internal/protocol"
)

// TestAppendOnlyAccumulation 测试增量按"\n"+delta追加，首次追加也带前导换行
func TestAppendOnlyAccumulation(t *testing.T) {
	record := NewRecord()

	record.Apply(&protocol.Message{FullTranslations: map[string]string{"fr": "bonjour"}})
	assert.Equal(t, "\nbonjour", record.FullTranslations["fr"])

	record.Apply(&protocol.Message{FullTranslations: map[string]string{"fr": "le monde"}})
	assert.Equal(t, "\nbonjour\nle monde", record.FullTranslations["fr"])

	// 其他语言互不影响
	record.Apply(&protocol.Message{FullTranslations: map[string]string{"es": "hola"}})
	assert.Equal(t, "\nbonjour\nle monde", record.FullTranslations["fr"])
	assert.Equal(t, "\nhola", record.FullTranslations["es"])
}

// TestEmptyDeltaIgnored 测试空增量不产生孤立换行
func TestEmptyDeltaIgnored(t *testing.T) {
	record := NewRecord()
	record.Apply(&protocol.Message{FullTranslations: map[string]string{"fr": ""}})
	assert.Empty(t, record.FullTranslations["fr"])
}

// TestLanguagesReplaceWholesale 测试语言集合整体替换而非合并
func TestLanguagesReplaceWholesale(t *testing.T) {
	record := NewRecord()

	record.Apply(&protocol.Message{Languages: []string{"fr", "es", "de"}})
	assert.Equal(t, []string{"fr", "es", "de"}, record.TargetLanguages)

	record.Apply(&protocol.Message{Languages: []string{"fr"}})
	assert.Equal(t, []string{"fr"}, record.TargetLanguages)

	// languages缺席时保持不变
	record.Apply(&protocol.Message{Transcription: "hello"})
	assert.Equal(t, []string{"fr"}, record.TargetLanguages)
}

// TestBufferRetainedAfterLanguageRemoved 语言被移出集合后缓冲区仍保留
func TestBufferRetainedAfterLanguageRemoved(t *testing.T) {
	record := NewRecord()

	record.Apply(&protocol.Message{
		Languages:        []string{"fr", "es"},
		FullTranslations: map[string]string{"es": "hola"},
	})
	record.Apply(&protocol.Message{Languages: []string{"fr"}})

	assert.Equal(t, []string{"fr"}, record.TargetLanguages)
	assert.Equal(t, "\nhola", record.FullTranslations["es"],
		"removing a language must not delete its accumulated buffer")
}

// TestSessionStartedTransitions 测试会话生命周期标志
func TestSessionStartedTransitions(t *testing.T) {
	record := NewRecord()
	assert.False(t, record.Started)

	record.Apply(&protocol.Message{SessionStarted: protocol.Bool(true)})
	assert.True(t, record.Started)

	// 缺席不改变
	record.Apply(&protocol.Message{Transcription: "still going"})
	assert.True(t, record.Started)

	record.Apply(&protocol.Message{SessionStarted: protocol.Bool(false)})
	assert.False(t, record.Started)
}

// TestCloneIsolation 测试Clone与原记录互不影响
func TestCloneIsolation(t *testing.T) {
	record := NewRecord()
	record.Apply(&protocol.Message{
		Languages:        []string{"fr"},
		FullTranslations: map[string]string{"fr": "bonjour"},
	})

	clone := record.Clone()
	require.Equal(t, record.TargetLanguages, clone.TargetLanguages)
	require.Equal(t, record.FullTranslations, clone.FullTranslations)

	clone.Apply(&protocol.Message{FullTranslations: map[string]string{"fr": "encore"}})
	assert.Equal(t, "\nbonjour", record.FullTranslations["fr"])
	assert.Equal(t, "\nbonjour\nencore", clone.FullTranslations["fr"])
}
