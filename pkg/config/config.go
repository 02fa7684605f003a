// Package config holds the run configuration for a capture/diff batch.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPort            = 22
	DefaultDialTimeoutSec  = 20
	DefaultSettleSec       = 3
	DefaultCmdTimeoutSec   = 180
	DefaultHostDeadlineSec = 900
)

// TransportConfig bounds a single SSH session. Durations are seconds so the
// YAML stays plain integers.
type TransportConfig struct {
	Port            int    `yaml:"port" validate:"min=1,max=65535"`
	DialTimeoutSec  int    `yaml:"dialTimeoutSec" validate:"min=1"`
	SettleSec       int    `yaml:"settleSec" validate:"min=1"`
	CmdTimeoutSec   int    `yaml:"cmdTimeoutSec" validate:"min=1"`
	HostDeadlineSec int    `yaml:"hostDeadlineSec" validate:"min=0"`
	PromptPattern   string `yaml:"promptPattern"`
}

func (t TransportConfig) DialTimeout() time.Duration {
	return time.Duration(t.DialTimeoutSec) * time.Second
}
func (t TransportConfig) Settle() time.Duration {
	return time.Duration(t.SettleSec) * time.Second
}
func (t TransportConfig) CmdTimeout() time.Duration {
	return time.Duration(t.CmdTimeoutSec) * time.Second
}
func (t TransportConfig) HostDeadline() time.Duration {
	return time.Duration(t.HostDeadlineSec) * time.Second
}

// InventoryConfig names the host list and the command lists per device class.
type InventoryConfig struct {
	HostFile    string            `yaml:"hostFile"`
	CommandFile string            `yaml:"commandFile"`
	ClassFiles  map[string]string `yaml:"classFiles"`
}

// KafkaConfig enables the audit-event publisher when brokers are set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MongoConfig selects the MongoDB artifact backend when URI is set.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	DBName   string `yaml:"dbName"`
	CollName string `yaml:"collName"`
}

type Config struct {
	OutputDir          string `yaml:"outputDir" validate:"required"`
	Ticket             string `yaml:"ticket"`
	MaxConcurrentHosts int    `yaml:"maxConcurrentHosts" validate:"min=1"`
	RequirePre         bool   `yaml:"requirePre"`

	Transport TransportConfig `yaml:"transport"`
	Inventory InventoryConfig `yaml:"inventory"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Mongo     MongoConfig     `yaml:"mongo"`
}

// Default returns a Config with the sequential baseline: one host at a time,
// one command at a time.
func Default() *Config {
	cfg := &Config{
		OutputDir:          "output",
		MaxConcurrentHosts: 1,
	}
	cfg.Transport = TransportConfig{
		Port:            DefaultPort,
		DialTimeoutSec:  DefaultDialTimeoutSec,
		SettleSec:       DefaultSettleSec,
		CmdTimeoutSec:   DefaultCmdTimeoutSec,
		HostDeadlineSec: DefaultHostDeadlineSec,
	}
	return cfg
}

var validate = validator.New()

// Validate checks the struct tags and returns the first violation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
