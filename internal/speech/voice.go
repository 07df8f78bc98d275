package speech

import (
	"fmt"
)

// voiceMap 每种目标语言对应的神经网络语音
var voiceMap = map[string]string{
	"en": "en-US-JennyNeural",
	"fr": "fr-FR-DeniseNeural",
	"es": "es-ES-ElviraNeural",
	"de": "de-DE-KatjaNeural",
	"it": "it-IT-ElsaNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
	"ja": "ja-JP-KeitaNeural",
	"ko": "ko-KR-SunHiNeural",
	"ar": "ar-SA-ZariyahNeural",
	"pt": "pt-PT-FernandaNeural",
	"ru": "ru-RU-SvetlanaNeural",
}

// defaultVoice 未知语言的回退语音
const defaultVoice = "en-US-JennyNeural"

// VoiceForLanguage 返回语言代码对应的语音名称
func VoiceForLanguage(languageCode string) string {
	if voice, ok := voiceMap[languageCode]; ok {
		return voice
	}
	return defaultVoice
}

// BuildSSML 组装合成用的SSML文档，语速1.5倍
func BuildSSML(text, languageCode string) string {
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s"><prosody rate="1.5">%s</prosody></voice></speak>`,
		languageCode, VoiceForLanguage(languageCode), text)
}
