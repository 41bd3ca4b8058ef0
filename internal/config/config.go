package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	LogLevel string `json:"log_level"`

	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`

	Correlation struct {
		Capacity          int `json:"capacity"`
		RevertDelayMS     int `json:"revert_delay_ms"`
		RateWindowSec     int `json:"rate_window_sec"`
		KeywordWeight     int `json:"keyword_weight"`
		PayloadKeyWeight  int `json:"payload_key_weight"`
		ConfidenceDivisor int `json:"confidence_divisor"`
	} `json:"correlation"`

	Ingest struct {
		MaxConcurrent int `json:"max_concurrent"`
	} `json:"ingest"`

	Simulation struct {
		Enabled      bool   `json:"enabled"`
		ScenarioPath string `json:"scenario_path"`
	} `json:"simulation"`

	Feed struct {
		StatsIntervalSec int `json:"stats_interval_sec"`
	} `json:"feed"`

	Proxy struct {
		FraudURL string `json:"fraud_url"`
		GraphURL string `json:"graph_url"`
	} `json:"proxy"`

	Alerts struct {
		Targets        []string `json:"targets"`
		MinIntervalSec int      `json:"min_interval_sec"`
		AdvisoryURL    string   `json:"advisory_url"`
		TelegramToken  string   `json:"telegram_token"`
		SlackToken     string   `json:"slack_token"`
		DiscordToken   string   `json:"discord_token"`
	} `json:"alerts"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LogLevel = "info"
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = ":8090"
	cfg.Correlation.Capacity = 100
	cfg.Correlation.RevertDelayMS = 3000
	cfg.Correlation.RateWindowSec = 60
	cfg.Correlation.KeywordWeight = 1
	cfg.Correlation.PayloadKeyWeight = 2
	cfg.Correlation.ConfidenceDivisor = 5
	cfg.Ingest.MaxConcurrent = 2
	cfg.Simulation.Enabled = true
	cfg.Feed.StatsIntervalSec = 5
	cfg.Proxy.FraudURL = "http://localhost:8000"
	cfg.Proxy.GraphURL = "http://localhost:8001"
	cfg.Alerts.MinIntervalSec = 30

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if url := os.Getenv("THREATSIGHT_BACKEND_URL"); url != "" {
		cfg.Proxy.FraudURL = url
	}
	if url := os.Getenv("THREATSIGHT_GRAPH_URL"); url != "" {
		cfg.Proxy.GraphURL = url
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Alerts.TelegramToken = token
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		cfg.Alerts.SlackToken = token
	}
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		cfg.Alerts.DiscordToken = token
	}

	return cfg, nil
}

// Save writes the config atomically.
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
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
