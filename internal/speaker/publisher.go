package speaker

import (
	"context"
	"log"
	"sync"

	"LiveTranslateRelay/internal/protocol"
	"LiveTranslateRelay/internal/speech"
)

// Sender 出站消息通道，由中继客户端实现
type Sender interface {
	Send(msg *protocol.Message) error
}

// Publisher 扬声端发布者：把识别事件翻译成出站中继消息，
// 并维护扬声端自己的累计原文/译文。中间结果只带瞬时字段
// （isComplete=false），定稿结果额外带每种语言的增量
// （fullTranslations）并置isComplete=true。
type Publisher struct {
	sessionID string
	sender    Sender

	mu                sync.RWMutex
	targetLanguages   []string
	started           bool
	fullTranscription string
	fullTranslations  map[string]string
}

// New 创建发布者
func New(sessionID string, sender Sender, targetLanguages []string) *Publisher {
	langs := make([]string, len(targetLanguages))
	copy(langs, targetLanguages)
	return &Publisher{
		sessionID:        sessionID,
		sender:           sender,
		targetLanguages:  langs,
		fullTranslations: map[string]string{},
	}
}

// Start 宣告会话开始并公布目标语言
func (p *Publisher) Start() error {
	p.mu.Lock()
	p.started = true
	langs := make([]string, len(p.targetLanguages))
	copy(langs, p.targetLanguages)
	p.mu.Unlock()

	return p.sender.Send(&protocol.Message{
		SessionID:      p.sessionID,
		SessionStarted: protocol.Bool(true),
		Languages:      langs,
	})
}

// Stop 宣告会话结束。监听端已入队的播放项自然放完，不强制清空。
func (p *Publisher) Stop() error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	return p.sender.Send(&protocol.Message{
		SessionID:      p.sessionID,
		SessionStarted: protocol.Bool(false),
	})
}

// Announce 重连后重新公布当前会话状态和语言列表。
// 重同步是扬声端的职责，中继不回放错过的广播。
func (p *Publisher) Announce() error {
	p.mu.RLock()
	started := p.started
	langs := make([]string, len(p.targetLanguages))
	copy(langs, p.targetLanguages)
	p.mu.RUnlock()

	return p.sender.Send(&protocol.Message{
		SessionID:      p.sessionID,
		SessionStarted: protocol.Bool(started),
		Languages:      langs,
	})
}

// SetTargetLanguages 整体替换目标语言集合，会话进行中时同时公布
func (p *Publisher) SetTargetLanguages(languages []string) error {
	p.mu.Lock()
	p.targetLanguages = make([]string, len(languages))
	copy(p.targetLanguages, languages)
	started := p.started
	langs := make([]string, len(p.targetLanguages))
	copy(langs, p.targetLanguages)
	p.mu.Unlock()

	if !started {
		return nil
	}
	return p.sender.Send(&protocol.Message{
		SessionID: p.sessionID,
		Languages: langs,
	})
}

// HandleRecognition 处理一次识别事件
func (p *Publisher) HandleRecognition(result speech.RecognitionResult) error {
	if !result.IsFinal {
		return p.sender.Send(&protocol.Message{
			SessionID:     p.sessionID,
			Transcription: result.Text,
			Translations:  result.Translations,
			IsComplete:    false,
		})
	}

	// 定稿：本地累计并下发每种语言的增量
	deltas := make(map[string]string, len(result.Translations))

	p.mu.Lock()
	if result.Text != "" {
		p.fullTranscription = p.fullTranscription + "\n" + result.Text
	}
	for lang, text := range result.Translations {
		if text == "" {
			continue
		}
		p.fullTranslations[lang] = p.fullTranslations[lang] + "\n" + text
		deltas[lang] = text
	}
	p.mu.Unlock()

	return p.sender.Send(&protocol.Message{
		SessionID:        p.sessionID,
		Transcription:    result.Text,
		Translations:     result.Translations,
		FullTranslations: deltas,
		IsComplete:       true,
	})
}

// Relay 消费识别事件流直到流结束或ctx取消。单条发送失败只记录，
// 继续处理后续事件。
func (p *Publisher) Relay(ctx context.Context, results <-chan speech.RecognitionResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			if err := p.HandleRecognition(result); err != nil {
				log.Printf("Relay recognition event failed: %v", err)
			}
		}
	}
}

// FullTranscription 扬声端累计原文
func (p *Publisher) FullTranscription() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fullTranscription
}

// FullTranslation 扬声端某语言的累计译文
func (p *Publisher) FullTranslation(languageCode string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fullTranslations[languageCode]
}

// Started 会话是否进行中
func (p *Publisher) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}
