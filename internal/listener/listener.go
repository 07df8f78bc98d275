package listener

import (
	"sync"

	"LiveTranslateRelay/internal/playback"
	"LiveTranslateRelay/internal/protocol"
)

// Listener 监听端本地状态。入站广播先按sessionId过滤（服务器广播
// 给所有连接，各端自行筛选），再按字段形状路由进本地状态，
// isComplete定稿且带有所选语言译文时触发一次播放入队。
type Listener struct {
	sessionID string
	queue     *playback.Queue

	mu                 sync.RWMutex
	selectedLanguage   string
	sessionStarted     bool
	availableLanguages []string
	transcription      string
	translations       map[string]string
	fullTranslations   map[string]string
}

// New 创建监听端状态
func New(sessionID, selectedLanguage string, queue *playback.Queue) *Listener {
	return &Listener{
		sessionID:        sessionID,
		selectedLanguage: selectedLanguage,
		queue:            queue,
		translations:     map[string]string{},
		fullTranslations: map[string]string{},
	}
}

// HandleMessage 处理一条入站中继消息
func (l *Listener) HandleMessage(msg *protocol.Message) {
	if msg.SessionID != l.sessionID {
		return
	}

	l.mu.Lock()

	if msg.SessionStarted != nil {
		l.sessionStarted = *msg.SessionStarted
	}

	if msg.Languages != nil {
		langs := make([]string, len(msg.Languages))
		copy(langs, msg.Languages)
		l.availableLanguages = langs
	}

	// 瞬时显示状态整体替换，没带就清空（与原页面行为一致）
	l.transcription = msg.Transcription
	l.translations = make(map[string]string, len(msg.Translations))
	for lang, text := range msg.Translations {
		l.translations[lang] = text
	}

	// 累计缓冲只追加，绝不替换
	for lang, delta := range msg.FullTranslations {
		if delta == "" {
			continue
		}
		l.fullTranslations[lang] = l.fullTranslations[lang] + "\n" + delta
	}

	selected := l.selectedLanguage
	speakText, hasSpeakText := msg.Translations[selected]

	l.mu.Unlock()

	// 定稿消息对应所选语言有译文时，恰好入队一个播放项
	if msg.IsComplete && hasSpeakText && speakText != "" && l.queue != nil {
		l.queue.Enqueue(playback.Item{Text: speakText, LanguageCode: selected})
	}
}

// Resync 用快照读回来的持久化状态初始化本地累计缓冲。
// 重连后唯一的补课手段；掉线期间的瞬时更新已永久错过。
func (l *Listener) Resync(languages []string, fullTranslations map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.availableLanguages = make([]string, len(languages))
	copy(l.availableLanguages, languages)

	l.fullTranslations = make(map[string]string, len(fullTranslations))
	for lang, text := range fullTranslations {
		l.fullTranslations[lang] = text
	}
}

// SelectLanguage 切换本地收听语言
func (l *Listener) SelectLanguage(languageCode string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selectedLanguage = languageCode
}

// SessionStarted 会话是否进行中
func (l *Listener) SessionStarted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionStarted
}

// AvailableLanguages 扬声端公布的目标语言列表
func (l *Listener) AvailableLanguages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	langs := make([]string, len(l.availableLanguages))
	copy(langs, l.availableLanguages)
	return langs
}

// Transcription 当前显示的原文
func (l *Listener) Transcription() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.transcription
}

// CurrentTranslation 所选语言的当前单句译文
func (l *Listener) CurrentTranslation() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.translations[l.selectedLanguage]
}

// FullTranslation 某语言的累计译文缓冲
func (l *Listener) FullTranslation(languageCode string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fullTranslations[languageCode]
}
