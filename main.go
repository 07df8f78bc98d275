package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"LiveTranslateRelay/internal/config"
	"LiveTranslateRelay/internal/listener"
	"LiveTranslateRelay/internal/loadtest"
	"LiveTranslateRelay/internal/logger"
	"LiveTranslateRelay/internal/playback"
	"LiveTranslateRelay/internal/relayclient"
	"LiveTranslateRelay/internal/relayserver"
	"LiveTranslateRelay/internal/speaker"
	"LiveTranslateRelay/internal/speech"
	"LiveTranslateRelay/internal/store"
)

func main() {
	var (
		mode       = flag.String("mode", "demo", "运行模式: demo, server, speaker, listener, loadtest")
		configPath = flag.String("config", "", "配置文件路径（YAML）")
		sessionID  = flag.String("session", "demo-session", "会话ID")
		language   = flag.String("lang", "fr", "监听语言代码")
		duration   = flag.Duration("duration", 30*time.Second, "speaker/listener/loadtest模式运行时长")
		listeners  = flag.Int("listeners", 50, "loadtest模式的监听端连接数")
		rate       = flag.Int("rate", 10, "loadtest模式每秒发布的消息数")
	)
	flag.Parse()

	logger.InitLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	switch *mode {
	case "demo":
		runDemo(cfg, *sessionID, *language)
	case "server":
		runServer(cfg)
	case "speaker":
		runSpeaker(cfg, *sessionID, *duration)
	case "listener":
		runListener(cfg, *sessionID, *language, *duration)
	case "loadtest":
		runLoadtest(cfg, *sessionID, *listeners, *rate, *duration)
	default:
		fmt.Printf("未知模式: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runServer 启动中继服务器，直到收到退出信号
func runServer(cfg *config.Config) {
	sessionStore := newStore(cfg)
	defer sessionStore.Close()

	serverConfig := relayserver.DefaultServerConfig(cfg.Server.Addr)
	serverConfig.MaxConnections = cfg.Server.MaxConnections
	serverConfig.SendQueueSize = cfg.Server.SendQueueSize
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout

	server := relayserver.New(serverConfig, sessionStore)
	if err := server.Start(); err != nil {
		log.Fatalf("Start relay server failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown failed: %v", err)
	}
}

// runSpeaker 扬声端演示：连上中继，用脚本识别器发布一段会话
func runSpeaker(cfg *config.Config, sessionID string, duration time.Duration) {
	client := newClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	pub := speaker.New(sessionID, client, []string{"en", "fr", "es"})

	// 重连成功后重新公布会话状态
	client.SetStateChangeHandler(func(oldState, newState relayclient.ClientState) {
		if newState == relayclient.StateConnected && oldState == relayclient.StateReconnecting {
			if err := pub.Announce(); err != nil {
				log.Printf("Re-announce after reconnect failed: %v", err)
			}
		}
	})

	if err := pub.Start(); err != nil {
		log.Fatalf("Start session failed: %v", err)
	}

	recognizer := &speech.ScriptedRecognizer{
		Interval: 2 * time.Second,
		Script:   demoScript(),
	}
	results, err := recognizer.Recognize(ctx, "en-US", []string{"en", "fr", "es"})
	if err != nil {
		log.Fatalf("Start recognition failed: %v", err)
	}

	pub.Relay(ctx, results)

	if err := pub.Stop(); err != nil {
		log.Printf("Stop session failed: %v", err)
	}
	log.Printf("Speaker done, full transcription:%s", pub.FullTranscription())
}

// runListener 监听端演示：先读快照补课，再接收直播并串行播放
func runListener(cfg *config.Config, sessionID, language string, duration time.Duration) {
	queue := playback.NewQueue(&loggingSynthesizer{})
	defer queue.Close()

	lst := listener.New(sessionID, language, queue)

	resyncFromSnapshot(cfg, sessionID, lst)

	client := newClient(cfg)
	client.SetMessageHandler(lst.HandleMessage)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	<-ctx.Done()
	log.Printf("Listener done, accumulated %s translation:%s",
		language, lst.FullTranslation(language))
}

// runDemo 单进程演示：内存存储的服务器 + 一个扬声端 + 一个监听端
func runDemo(cfg *config.Config, sessionID, language string) {
	sessionStore := store.NewMemoryStore()
	server := relayserver.New(relayserver.DefaultServerConfig("127.0.0.1:0"), sessionStore)
	if err := server.Start(); err != nil {
		log.Fatalf("Start relay server failed: %v", err)
	}
	defer server.Shutdown(context.Background())

	demoCfg := *cfg
	demoCfg.Client.URL = fmt.Sprintf("ws://%s/ws", server.Addr())

	go runListener(&demoCfg, sessionID, language, 15*time.Second)
	time.Sleep(500 * time.Millisecond)
	runSpeaker(&demoCfg, sessionID, 12*time.Second)
	time.Sleep(3 * time.Second)
}

// runLoadtest 对目标中继服务器做广播扇出压测
func runLoadtest(cfg *config.Config, sessionID string, listeners, rate int, duration time.Duration) {
	ltConfig := loadtest.DefaultFanoutConfig(cfg.Client.URL)
	ltConfig.SessionID = sessionID
	ltConfig.Listeners = listeners
	ltConfig.MessageRate = rate
	ltConfig.Duration = duration

	log.Printf("Starting fanout loadtest: url=%s listeners=%d rate=%d/s duration=%s",
		ltConfig.URL, ltConfig.Listeners, ltConfig.MessageRate, ltConfig.Duration)

	result, err := loadtest.NewFanoutTester(ltConfig).Run(context.Background())
	if err != nil {
		log.Fatalf("Loadtest failed: %v", err)
	}
	log.Printf("Loadtest finished: %s", result)
}

// newStore 按配置选择会话存储：有DSN用PostgreSQL，否则内存
func newStore(cfg *config.Config) store.SessionStore {
	if cfg.Database.DSN == "" {
		log.Printf("No database DSN configured, using in-memory session store")
		return store.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgStore, err := store.NewPgxStore(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Connect session store failed: %v", err)
	}
	return pgStore
}

func newClient(cfg *config.Config) *relayclient.Client {
	clientConfig := relayclient.DefaultClientConfig(cfg.Client.URL)
	clientConfig.HandshakeTimeout = cfg.Client.HandshakeTimeout
	clientConfig.KeepaliveInterval = cfg.Client.KeepaliveInterval
	clientConfig.ReconnectInterval = cfg.Client.ReconnectInterval
	return relayclient.New(clientConfig)
}

// resyncFromSnapshot 从快照接口读回最近的累计状态
func resyncFromSnapshot(cfg *config.Config, sessionID string, lst *listener.Listener) {
	base := strings.TrimSuffix(strings.Replace(
		strings.Replace(cfg.Client.URL, "ws://", "http://", 1), "wss://", "https://", 1), "/ws")

	resp, err := http.Get(fmt.Sprintf("%s/api/session-data?sessionId=%s", base, sessionID))
	if err != nil {
		log.Printf("Snapshot read failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("No snapshot for session %s (status %d)", sessionID, resp.StatusCode)
		return
	}

	var snapshot struct {
		Languages        []string          `json:"languages"`
		FullTranslations map[string]string `json:"fullTranslations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		log.Printf("Decode snapshot failed: %v", err)
		return
	}

	lst.Resync(snapshot.Languages, snapshot.FullTranslations)
	log.Printf("Resynced session %s from snapshot (%d languages)",
		sessionID, len(snapshot.Languages))
}

// loggingSynthesizer 演示用合成器：打印要播的句子并模拟播放时长
type loggingSynthesizer struct{}

func (s *loggingSynthesizer) Speak(ctx context.Context, text, languageCode string) error {
	log.Printf("Speaking [%s voice=%s]: %s",
		languageCode, speech.VoiceForLanguage(languageCode), text)
	select {
	case <-time.After(time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// demoScript 演示用识别脚本：两句话，各带一次中间结果和一次定稿
func demoScript() []speech.RecognitionResult {
	return []speech.RecognitionResult{
		{
			Text:         "Good morning every",
			Translations: map[string]string{"en": "Good morning every", "fr": "Bonjour à tous", "es": "Buenos días a"},
			IsFinal:      false,
		},
		{
			Text:         "Good morning everyone",
			Translations: map[string]string{"en": "Good morning everyone", "fr": "Bonjour tout le monde", "es": "Buenos días a todos"},
			IsFinal:      true,
		},
		{
			Text:         "Welcome to the",
			Translations: map[string]string{"en": "Welcome to the", "fr": "Bienvenue à la", "es": "Bienvenidos a la"},
			IsFinal:      false,
		},
		{
			Text:         "Welcome to the session",
			Translations: map[string]string{"en": "Welcome to the session", "fr": "Bienvenue à la session", "es": "Bienvenidos a la sesión"},
			IsFinal:      true,
		},
	}
}
