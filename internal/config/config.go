// Package config handles configuration loading, validation, and persistence
// for the SuperSmashTexty session layer and its supporting services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"

	DefaultCodePrefix     = "smashtexty-"
	DefaultCodeLength     = 6
	DefaultRendezvousPort = 7350
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Network         NetworkData     `json:"network"`
	ApplicationData ApplicationData `json:"application_data"`
}

// NetworkData configures the session layer and its TCP transport.
type NetworkData struct {
	// CodePrefix is prepended to invite codes to form channel identifiers.
	CodePrefix string `json:"code_prefix"`

	// CodeLength is the width of generated invite codes.
	CodeLength int `json:"code_length"`

	// ConnectTimeoutSec bounds a client's attempt to reach a host.
	ConnectTimeoutSec int `json:"connect_timeout_sec"`

	// SettleDelayMS is how long the host waits after an identifier
	// collision before claiming a fresh code.
	SettleDelayMS int `json:"settle_delay_ms"`

	// MaxCodeRetries caps collision retries during identity acquisition.
	// 0 retries forever.
	MaxCodeRetries int `json:"max_code_retries"`

	// ListenAddress is where the TCP transport accepts peers. Port 0 binds
	// an ephemeral port.
	ListenAddress string `json:"listen_address"`

	// AdvertiseAddress overrides the address registered with the
	// rendezvous service. Empty means the listener's own address.
	AdvertiseAddress string `json:"advertise_address"`
}

// ApplicationData contains configuration for the supporting services.
type ApplicationData struct {
	Rendezvous RendezvousConfig `json:"rendezvous"`
	MQTT       MQTTConfig       `json:"mqtt"`
	Logging    LoggingConfig    `json:"logging"`
}

// RendezvousConfig holds address-discovery settings, shared between the
// rendezvous server and the clients that register with it.
type RendezvousConfig struct {
	// Endpoints are tried in order by clients; later entries are fallbacks.
	Endpoints []string `json:"endpoints"`

	// Port the rendezvous server listens on.
	Port int `json:"port"`

	// DatabasePath is where the server persists registrations.
	DatabasePath string `json:"database_path"`

	// RegistrationTTLSec is how long a registration stays valid without a
	// heartbeat.
	RegistrationTTLSec int `json:"registration_ttl_sec"`

	// HeartbeatIntervalSec is how often a claimed identity refreshes.
	HeartbeatIntervalSec int `json:"heartbeat_interval_sec"`

	// SweepIntervalSec is how often the server purges expired entries.
	SweepIntervalSec int `json:"sweep_interval_sec"`

	// AllowedOrigins for browser clients of the HTTP API.
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkData{
			CodePrefix:        DefaultCodePrefix,
			CodeLength:        DefaultCodeLength,
			ConnectTimeoutSec: 30,
			SettleDelayMS:     500,
			MaxCodeRetries:    16,
			ListenAddress:     "0.0.0.0:0",
		},
		ApplicationData: ApplicationData{
			Rendezvous: RendezvousConfig{
				Endpoints:            []string{fmt.Sprintf("http://127.0.0.1:%d", DefaultRendezvousPort)},
				Port:                 DefaultRendezvousPort,
				DatabasePath:         "config/rendezvous.db",
				RegistrationTTLSec:   60,
				HeartbeatIntervalSec: 20,
				SweepIntervalSec:     30,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating it with defaults when
// missing. Defaults are applied first so new fields pick up sane values.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetNetwork returns a copy of the network configuration.
func (c *Config) GetNetwork() NetworkData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Network
}

// SetNetwork updates the network configuration.
func (c *Config) SetNetwork(data NetworkData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Network = data
}

// GetApplicationData returns a copy of the application configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}
