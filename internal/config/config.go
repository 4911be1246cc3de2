// Package config loads and edits the JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	LogFile       string `json:"log_file"`
	MaxConcurrent int    `json:"max_concurrent"`
	Agent         struct {
		BaseURL               string `json:"base_url"`
		ChatPath              string `json:"chat_path"`
		APIKey                string `json:"api_key"`
		UploadURL             string `json:"upload_url"`
		Model                 string `json:"model"`
		RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
		ConnectTimeoutSeconds int    `json:"connect_timeout_seconds"`
	} `json:"agent"`
	Quota struct {
		DailyLimit    int    `json:"daily_limit"`
		ResetSchedule string `json:"reset_schedule"`
		Store         string `json:"store"`
	} `json:"quota"`
	Conversation struct {
		HistoryPairs     int `json:"history_pairs"`
		TaskClearDelayMS int `json:"task_clear_delay_ms"`
	} `json:"conversation"`
	Attachment struct {
		MaxTokens      int    `json:"max_tokens"`
		TokenizerModel string `json:"tokenizer_model"`
	} `json:"attachment"`
	Telemetry struct {
		Enabled         bool `json:"enabled"`
		IntervalSeconds int  `json:"interval_seconds"`
	} `json:"telemetry"`
	HTTP struct {
		Listen string `json:"listen"`
	} `json:"http"`
	Telegram struct {
		Token       string  `json:"token"`
		Subscribers []int64 `json:"subscribers"`
	} `json:"telegram"`
	User struct {
		ID         string `json:"id"`
		Subscriber bool   `json:"subscriber"`
	} `json:"user"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".tickerchat"),
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.Agent.BaseURL = "http://localhost:8000"
	cfg.Agent.ChatPath = "/api/chat"
	cfg.Agent.Model = "gemini-flash"
	cfg.Agent.RequestTimeoutSeconds = 120
	cfg.Agent.ConnectTimeoutSeconds = 10
	cfg.Quota.DailyLimit = 3
	cfg.Quota.ResetSchedule = "CRON_TZ=UTC 0 0 * * *"
	cfg.Quota.Store = "file"
	cfg.Conversation.HistoryPairs = 3
	cfg.Conversation.TaskClearDelayMS = 1500
	cfg.Attachment.MaxTokens = 8000
	cfg.Attachment.TokenizerModel = "gpt-4o"
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.IntervalSeconds = 30
	cfg.HTTP.Listen = "127.0.0.1:8080"
	cfg.User.ID = "local"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("TICKERCHAT_API_KEY"); apiKey != "" {
		cfg.Agent.APIKey = apiKey
	}
	if baseURL := os.Getenv("TICKERCHAT_BASE_URL"); baseURL != "" {
		cfg.Agent.BaseURL = baseURL
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

// RequestTimeout is the bound on a whole turn.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Agent.RequestTimeoutSeconds) * time.Second
}

// ConnectTimeout bounds dialing and waiting for response headers.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Agent.ConnectTimeoutSeconds) * time.Second
}

// TaskClearDelay is how long a finished plan stays visible.
func (c *Config) TaskClearDelay() time.Duration {
	return time.Duration(c.Conversation.TaskClearDelayMS) * time.Millisecond
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into its generic JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every config value ordered by dotted key, with
// secrets redacted when mask is set.
func ListValues(cfg *Config, mask bool) ([]Setting, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	settings := Settings(m)
	if mask {
		for i, s := range settings {
			settings[i].Value = Redact(s.Key, s.Value)
		}
	}
	return settings, nil
}

// GetValue returns the value at a dotted key of the config file at path,
// creating the file with defaults if needed.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := lookup(raw, key)
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value at a dotted key of an existing config file. Only
// keys the Config type declares may be set. Scalars are stored as a bool
// or number when they parse as one; list keys take a comma-separated value.
func SetValue(path, key, value string) error {
	known, err := ToMap(Defaults())
	if err != nil {
		return err
	}
	if _, ok := lookup(known, key); !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	raw, err := readRaw(path)
	if err != nil {
		return err
	}

	if listKeys[key] {
		assign(raw, key, parseList(value))
	} else {
		assign(raw, key, parseValue(value))
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

func parseValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseList(s string) []any {
	out := []any{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, parseValue(part))
		}
	}
	return out
}
