package speech

import (
	"context"
	"time"
)

// ScriptedRecognizer 测试/演示用识别器：按固定间隔回放预设的识别事件。
// 目标语言过滤在回放时进行，与真实识别器行为一致。
type ScriptedRecognizer struct {
	// Script 预设的识别事件序列
	Script []RecognitionResult
	// Interval 事件之间的间隔
	Interval time.Duration
}

// Recognize 回放脚本。通道在脚本播完或ctx取消后关闭。
func (r *ScriptedRecognizer) Recognize(ctx context.Context, sourceLanguage string, targetLanguages []string) (<-chan RecognitionResult, error) {
	wanted := make(map[string]bool, len(targetLanguages))
	for _, lang := range targetLanguages {
		wanted[lang] = true
	}

	out := make(chan RecognitionResult)
	go func() {
		defer close(out)
		for _, event := range r.Script {
			if r.Interval > 0 {
				select {
				case <-time.After(r.Interval):
				case <-ctx.Done():
					return
				}
			}

			filtered := RecognitionResult{
				Text:         event.Text,
				IsFinal:      event.IsFinal,
				Translations: make(map[string]string, len(event.Translations)),
			}
			for lang, text := range event.Translations {
				if wanted[lang] {
					filtered.Translations[lang] = text
				}
			}

			select {
			case out <- filtered:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
