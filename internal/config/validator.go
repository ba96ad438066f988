package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration for values the session layer cannot
// work with.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	net := cfg.GetNetwork()
	if net.CodePrefix == "" {
		result.AddError("network.code_prefix", "code prefix must not be empty")
	}
	if net.CodeLength < 4 {
		result.AddError("network.code_length", "invite codes shorter than 4 characters collide too easily")
	}
	if net.ConnectTimeoutSec <= 0 {
		result.AddError("network.connect_timeout_sec", "connect timeout must be positive")
	}
	if net.SettleDelayMS < 0 {
		result.AddError("network.settle_delay_ms", "settle delay must not be negative")
	}
	if net.MaxCodeRetries < 0 {
		result.AddError("network.max_code_retries", "retry cap must not be negative (0 retries forever)")
	}

	app := cfg.GetApplicationData()
	if len(app.Rendezvous.Endpoints) == 0 {
		result.AddError("rendezvous.endpoints", "at least one rendezvous endpoint is required")
	}
	for _, ep := range app.Rendezvous.Endpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			result.AddWarning("rendezvous.endpoints", fmt.Sprintf("endpoint %q has no http(s) scheme", ep))
		}
	}
	if app.Rendezvous.RegistrationTTLSec <= app.Rendezvous.HeartbeatIntervalSec {
		result.AddWarning("rendezvous.registration_ttl_sec",
			"registration TTL should exceed the heartbeat interval or identities will flap")
	}

	if app.MQTT.Enabled && app.MQTT.BrokerURL == "" {
		result.AddError("mqtt.broker_url", "MQTT is enabled but no broker URL is set")
	}

	return result
}
