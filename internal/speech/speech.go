package speech

import (
	"context"
)

// RecognitionResult 一次识别事件：原文 + 各目标语言的译文。
// IsFinal为false表示流式中间结果，为true表示一句话定稿。
type RecognitionResult struct {
	Text         string
	Translations map[string]string
	IsFinal      bool
}

// Recognizer 外部语音服务的识别/翻译侧，黑盒消费。
// Recognize持续产出识别事件直到ctx取消或音频流结束。
type Recognizer interface {
	Recognize(ctx context.Context, sourceLanguage string, targetLanguages []string) (<-chan RecognitionResult, error)
}

// Synthesizer 外部语音服务的合成/播放侧，黑盒消费。
// Speak合成并播放一段文本，播放完成（或失败）后才返回。
type Synthesizer interface {
	Speak(ctx context.Context, text string, languageCode string) error
}
