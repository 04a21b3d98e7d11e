// Package config 负责加载和管理 mathchat 的配置。
// 配置来源优先级(从高到低)：
// 1. 环境变量(MATHCHAT_PROVIDER, LLM_API_KEY, GEMINI_API_KEY 等)
// 2. --config flag 指定的配置文件路径
// 3. ~/.config/mathchat/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt forces LaTeX-delimited math in every reply, which the
// math-safe renderer depends on.
const DefaultSystemPrompt = `你是一个绝对理性的数学与逻辑助手。请务必使用 LaTeX 格式输出所有数学公式：独立公式用 $$...$$，行内公式用 $...$。`

// DefaultGreeting is the first bot message of every new session.
const DefaultGreeting = `数学之境已开启。我是你的逻辑核心。`

// ProviderConfig 单个 provider 的配置
type ProviderConfig struct {
	// Kind selects the wire envelope: "gemini", "openai", "anthropic".
	// Empty means: inferred from the provider name, defaulting to openai.
	Kind    string `yaml:"kind"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SpeechConfig 语音相关配置
type SpeechConfig struct {
	// TTSLang is the voice/language preference handed to the speaker.
	TTSLang string `yaml:"tts_lang"`

	// AutoSendSeconds is the voice auto-submit countdown.
	AutoSendSeconds int `yaml:"auto_send_seconds"`

	// MaxRestarts caps automatic recognizer restarts.
	MaxRestarts int `yaml:"max_restarts"`
}

// Config 是 mathchat 的完整配置结构
type Config struct {
	// Provider 默认使用的 provider 名称(如 "gemini", "deepseek")
	Provider string `yaml:"provider"`

	// Providers 各 provider 的具体配置
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// SystemPrompt 自定义 system prompt(空则使用默认)
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting 新会话的开场消息(空则使用默认)
	Greeting string `yaml:"greeting"`

	// DBPath overrides the state database location.
	DBPath string `yaml:"db_path"`

	// Speech 语音配置
	Speech SpeechConfig `yaml:"speech"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Provider:     "gemini",
		Providers:    make(map[string]*ProviderConfig),
		SystemPrompt: DefaultSystemPrompt,
		Greeting:     DefaultGreeting,
		Speech: SpeechConfig{
			TTSLang:         "zh-CN",
			AutoSendSeconds: 3,
			MaxRestarts:     3,
		},
	}
}

// Load 加载配置文件，合并环境变量覆盖
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "mathchat", "config.yaml")
		}
	}

	// 读取配置文件(不存在时使用默认配置)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Speech.AutoSendSeconds <= 0 {
		cfg.Speech.AutoSendSeconds = 3
	}

	return cfg, nil
}

// GetProviderConfig 获取指定 provider 的配置，不存在时返回空配置
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// applyEnvOverrides 将环境变量覆盖到配置中
func applyEnvOverrides(cfg *Config) {
	setKey := func(name, key string) {
		if cfg.Providers[name] == nil {
			cfg.Providers[name] = &ProviderConfig{}
		}
		cfg.Providers[name].APIKey = key
	}

	// Provider 选择
	if v := os.Getenv("MATHCHAT_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	// 通用覆盖：作用于当前默认 provider
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		setKey(cfg.Provider, v)
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		if cfg.Providers[cfg.Provider] == nil {
			cfg.Providers[cfg.Provider] = &ProviderConfig{}
		}
		cfg.Providers[cfg.Provider].BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		if cfg.Providers[cfg.Provider] == nil {
			cfg.Providers[cfg.Provider] = &ProviderConfig{}
		}
		cfg.Providers[cfg.Provider].Model = v
	}

	// 各家专用 key
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		setKey("gemini", v)
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		setKey("deepseek", v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setKey("anthropic", v)
	}
}
