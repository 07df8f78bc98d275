package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestVoiceForLanguage 已知语言取映射语音，未知语言回退默认
func TestVoiceForLanguage(t *testing.T) {
	assert.Equal(t, "fr-FR-DeniseNeural", VoiceForLanguage("fr"))
	assert.Equal(t, "zh-CN-XiaoxiaoNeural", VoiceForLanguage("zh"))
	assert.Equal(t, defaultVoice, VoiceForLanguage("tlh"))
	assert.Equal(t, defaultVoice, VoiceForLanguage(""))
}

// TestBuildSSML SSML携带语言、语音与1.5倍语速
func TestBuildSSML(t *testing.T) {
	ssml := BuildSSML("bonjour", "fr")
	assert.Contains(t, ssml, `xml:lang="fr"`)
	assert.Contains(t, ssml, `name="fr-FR-DeniseNeural"`)
	assert.Contains(t, ssml, `rate="1.5"`)
	assert.Contains(t, ssml, ">bonjour<")
}

// TestScriptedRecognizerFiltersTargetLanguages 回放时剔除非目标语言
func TestScriptedRecognizerFiltersTargetLanguages(t *testing.T) {
	rec := &ScriptedRecognizer{
		Script: []RecognitionResult{
			{
				Text:         "hello",
				Translations: map[string]string{"fr": "bonjour", "es": "hola", "de": "hallo"},
				IsFinal:      true,
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results, err := rec.Recognize(ctx, "en", []string{"fr", "de"})
	require.NoError(t, err)

	event, ok := <-results
	require.True(t, ok)
	assert.Equal(t, "hello", event.Text)
	assert.True(t, event.IsFinal)
	assert.Equal(t, map[string]string{"fr": "bonjour", "de": "hallo"}, event.Translations)

	_, ok = <-results
	assert.False(t, ok, "channel closes after the script ends")
}

// TestScriptedRecognizerStopsOnCancel 取消ctx后回放终止并关闭通道
func TestScriptedRecognizerStopsOnCancel(t *testing.T) {
	script := make([]RecognitionResult, 100)
	for i := range script {
		script[i] = RecognitionResult{Text: "x", IsFinal: true}
	}
	rec := &ScriptedRecognizer{Script: script, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	results, err := rec.Recognize(ctx, "en", []string{"fr"})
	require.NoError(t, err)

	<-results
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-results:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("recognizer did not stop after cancel")
		}
	}
}

// TestStubSynthesizerRecordsCalls 桩合成器记录每次播放
func TestStubSynthesizerRecordsCalls(t *testing.T) {
	synth := &StubSynthesizer{}

	require.NoError(t, synth.Speak(context.Background(), "bonjour", "fr"))
	require.NoError(t, synth.Speak(context.Background(), "hola", "es"))

	calls := synth.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, StubCall{Text: "bonjour", LanguageCode: "fr"}, calls[0])
	assert.Equal(t, StubCall{Text: "hola", LanguageCode: "es"}, calls[1])
}

// TestStubSynthesizerFailureInjection 指定文本注入合成失败
func TestStubSynthesizerFailureInjection(t *testing.T) {
	wantErr := errors.New("synthesis rejected")
	synth := &StubSynthesizer{FailFor: map[string]error{"bad": wantErr}}

	assert.NoError(t, synth.Speak(context.Background(), "good", "en"))
	assert.ErrorIs(t, synth.Speak(context.Background(), "bad", "en"), wantErr)
}

// TestManualSynthesizerBlocksUntilCompleted 手动模式下Speak阻塞到CompleteNext
func TestManualSynthesizerBlocksUntilCompleted(t *testing.T) {
	synth := NewManualSynthesizer()

	done := make(chan error, 1)
	go func() {
		done <- synth.Speak(context.Background(), "hello", "en")
	}()

	select {
	case err := <-done:
		t.Fatalf("Speak returned before completion: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, synth.CompleteNext(nil, time.Second))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after CompleteNext")
	}
}
