package core

import (
	"fmt"
	"strings"
	"time"
)

// RetryConfig bounds one retryable pipeline stage.
type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

// VerificationPolicy is the configurable fatal vs non-fatal split. A fatal
// check failure rejects the account outright; a non-fatal one routes it to
// review with warnings.
type VerificationPolicy struct {
	FatalChecks       []string      `koanf:"fatal_checks" mapstructure:"fatal_checks"`
	MaxActiveSessions int           `koanf:"max_active_sessions" mapstructure:"max_active_sessions"`
	MaxFloodWait      time.Duration `koanf:"max_flood_wait" mapstructure:"max_flood_wait"`
	RequireTwoFactor  bool          `koanf:"require_two_factor" mapstructure:"require_two_factor"`
}

func (p VerificationPolicy) IsFatal(checkName string) bool {
	name := strings.TrimSpace(strings.ToLower(checkName))
	for _, fatal := range p.FatalChecks {
		if strings.TrimSpace(strings.ToLower(fatal)) == name {
			return true
		}
	}
	return false
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`

	ImportRetry  RetryConfig `koanf:"import_retry" mapstructure:"import_retry"`
	VerifyRetry  RetryConfig `koanf:"verify_retry" mapstructure:"verify_retry"`
	DestroyRetry RetryConfig `koanf:"destroy_retry" mapstructure:"destroy_retry"`

	Verification VerificationPolicy `koanf:"verification" mapstructure:"verification"`

	KeyRotationInterval   time.Duration `koanf:"key_rotation_interval" mapstructure:"key_rotation_interval"`
	LeaseTTL              time.Duration `koanf:"lease_ttl" mapstructure:"lease_ttl"`
	ReservationTTL        time.Duration `koanf:"reservation_ttl" mapstructure:"reservation_ttl"`
	ListingRetention      time.Duration `koanf:"listing_retention" mapstructure:"listing_retention"`
	DestroyTimeout        time.Duration `koanf:"destroy_timeout" mapstructure:"destroy_timeout"`
	DestroyAlertThreshold int           `koanf:"destroy_alert_threshold" mapstructure:"destroy_alert_threshold"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "sessionvault",
		ImportRetry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		VerifyRetry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		DestroyRetry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     time.Minute,
		},
		Verification: VerificationPolicy{
			FatalChecks:       []string{CheckAuthorization},
			MaxActiveSessions: 1,
			MaxFloodWait:      time.Hour,
		},
		KeyRotationInterval:   90 * 24 * time.Hour,
		LeaseTTL:              30 * time.Second,
		ReservationTTL:        15 * time.Minute,
		ListingRetention:      30 * 24 * time.Hour,
		DestroyTimeout:        30 * time.Second,
		DestroyAlertThreshold: 5,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	for _, retry := range []struct {
		name string
		cfg  RetryConfig
	}{
		{"import_retry", c.ImportRetry},
		{"verify_retry", c.VerifyRetry},
		{"destroy_retry", c.DestroyRetry},
	} {
		if retry.cfg.MaxAttempts < 1 {
			return fmt.Errorf("core: %s.max_attempts must be at least 1", retry.name)
		}
	}
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("core: reservation_ttl must be positive")
	}
	if c.ListingRetention <= c.ReservationTTL {
		return fmt.Errorf("core: listing_retention must exceed reservation_ttl")
	}
	return nil
}
