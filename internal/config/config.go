package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ServerConfig 中继服务器配置
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	SendQueueSize  int           `yaml:"send_queue_size" mapstructure:"send_queue_size"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// DatabaseConfig 会话快照库配置。DSN为空时退回内存存储。
type DatabaseConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// ClientConfig 端点侧中继客户端配置
type ClientConfig struct {
	URL               string        `yaml:"url" mapstructure:"url"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" mapstructure:"keepalive_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
}

// Config 完整配置
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Client   ClientConfig   `yaml:"client" mapstructure:"client"`
}

// setDefaults 注册默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_connections", 1000)
	v.SetDefault("server.send_queue_size", 64)
	v.SetDefault("server.write_timeout", 5*time.Second)

	v.SetDefault("database.dsn", "")

	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.handshake_timeout", 10*time.Second)
	v.SetDefault("client.keepalive_interval", 30*time.Second)
	v.SetDefault("client.reconnect_interval", 5*time.Second)
}

// Load 加载配置：默认值 < 配置文件 < RELAY_*环境变量。
// path为空时只用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s failed: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验可调参数
func (c *Config) Validate() error {
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive")
	}
	if c.Server.SendQueueSize <= 0 {
		return fmt.Errorf("server.send_queue_size must be positive")
	}
	if c.Client.KeepaliveInterval <= 0 {
		return fmt.Errorf("client.keepalive_interval must be positive")
	}
	if c.Client.ReconnectInterval <= 0 {
		return fmt.Errorf("client.reconnect_interval must be positive")
	}
	return nil
}

// Watcher 带热重载的配置持有者
type Watcher struct {
	mu  sync.RWMutex
	cfg *Config
	v   *viper.Viper
}

// LoadAndWatch 加载配置并监控文件变化，变化后重新加载可调参数
func LoadAndWatch(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{cfg: cfg}

	if path != "" {
		v := viper.New()
		setDefaults(v)
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s failed: %w", path, err)
		}
		w.v = v

		v.OnConfigChange(func(e fsnotify.Event) {
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				log.Printf("Reload config failed: %v", err)
				return
			}
			if err := next.Validate(); err != nil {
				log.Printf("Reloaded config invalid, keeping previous: %v", err)
				return
			}
			w.mu.Lock()
			w.cfg = &next
			w.mu.Unlock()
			log.Printf("Config reloaded from %s", e.Name)
		})
		v.WatchConfig()
	}

	return w, nil
}

// Get 当前配置快照
func (w *Watcher) Get() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}
