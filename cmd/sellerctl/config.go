package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/session"
)

// duration разбирает строки вида "15s" из TOML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// sellerctl.toml.
type fileConfig struct {
	BaseURL         string   `toml:"base_url"`
	CustomerID      string   `toml:"customer_id"`
	CancelFrom      string   `toml:"cancel_from"`
	PollSchedule    string   `toml:"poll_schedule"`
	StalenessWindow int      `toml:"staleness_window"`
	BulkLimit       int      `toml:"bulk_limit"`
	RedisAddr       string   `toml:"redis_addr"`
	HTTPTimeout     duration `toml:"http_timeout"`
	LogLevel        string   `toml:"log_level"`

	Retry struct {
		MaxAttempts  int      `toml:"max_attempts"`
		InitialDelay duration `toml:"initial_delay"`
		MaxDelay     duration `toml:"max_delay"`
	} `toml:"retry"`

	Kafka struct {
		Brokers []string `toml:"brokers"`
		Topic   string   `toml:"topic"`
		GroupID string   `toml:"group_id"`
	} `toml:"kafka"`
}

// kafkaConfig нужен только команде events.
type kafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type cliConfig struct {
	Session  session.Config
	Kafka    kafkaConfig
	LogLevel string
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Session: session.DefaultConfig(),
		Kafka: kafkaConfig{
			Topic:   kafka.TopicOrderEvents,
			GroupID: "sellerctl",
		},
		LogLevel: "warn",
	}
}

// loadConfigFile накладывает заданные в файле ключи на cfg.
func loadConfigFile(path string, cfg cliConfig) (cliConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load sellerctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cliConfig{}, fmt.Errorf("load sellerctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("base_url") {
		cfg.Session.BaseURL = strings.TrimSpace(raw.BaseURL)
	}
	if meta.IsDefined("customer_id") {
		cfg.Session.CustomerID = strings.TrimSpace(raw.CustomerID)
	}
	if meta.IsDefined("cancel_from") {
		cfg.Session.CancelFrom = strings.TrimSpace(raw.CancelFrom)
	}
	if meta.IsDefined("poll_schedule") {
		cfg.Session.PollSchedule = strings.TrimSpace(raw.PollSchedule)
	}
	if meta.IsDefined("staleness_window") {
		cfg.Session.StalenessWindow = raw.StalenessWindow
	}
	if meta.IsDefined("bulk_limit") {
		cfg.Session.BulkLimit = raw.BulkLimit
	}
	if meta.IsDefined("redis_addr") {
		cfg.Session.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	}
	if meta.IsDefined("http_timeout") {
		cfg.Session.HTTPTimeout = raw.HTTPTimeout.Duration
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("retry", "max_attempts") {
		cfg.Session.Retry.MaxAttempts = raw.Retry.MaxAttempts
	}
	if meta.IsDefined("retry", "initial_delay") {
		cfg.Session.Retry.InitialDelay = raw.Retry.InitialDelay.Duration
	}
	if meta.IsDefined("retry", "max_delay") {
		cfg.Session.Retry.MaxDelay = raw.Retry.MaxDelay.Duration
	}
	if meta.IsDefined("kafka", "brokers") {
		cfg.Kafka.Brokers = raw.Kafka.Brokers
	}
	if meta.IsDefined("kafka", "topic") {
		cfg.Kafka.Topic = strings.TrimSpace(raw.Kafka.Topic)
	}
	if meta.IsDefined("kafka", "group_id") {
		cfg.Kafka.GroupID = strings.TrimSpace(raw.Kafka.GroupID)
	}
	return cfg, nil
}

func (c cliConfig) validate() error {
	if strings.TrimSpace(c.Session.BaseURL) == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Session.BulkLimit < 0 {
		return fmt.Errorf("bulk_limit must be >= 0")
	}
	if c.Session.StalenessWindow < 0 {
		return fmt.Errorf("staleness_window must be >= 0")
	}
	return nil
}
