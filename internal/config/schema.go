package config

import (
	"time"

	"topolens/internal/domain"
)

// Config is the root configuration structure.
type Config struct {
	Version      int                       `yaml:"version"`
	Listen       string                    `yaml:"listen" validate:"required"`
	Database     DatabaseConfig            `yaml:"database"`
	ControlPlane ControlPlaneConfig        `yaml:"control_plane"`
	Adapters     AdaptersConfig            `yaml:"adapters"`
	Cache        CacheConfig               `yaml:"cache"`
	Sources      map[string]SourceOverride `yaml:"sources,omitempty"`
	SNMP         SNMPConfig                `yaml:"snmp"`
	Secondary    SecondaryVendorConfig     `yaml:"secondary_vendor"`
}

// DatabaseConfig locates the snapshot store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ControlPlaneConfig holds the primary vendor connection settings.
type ControlPlaneConfig struct {
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	StaticToken string `yaml:"static_token"`
	LoginPath   string `yaml:"login_path"`
	CookieName  string `yaml:"cookie_name"`

	SessionTTLMinutes   int `yaml:"session_ttl_minutes" validate:"gte=0"`
	SafetyMarginSeconds int `yaml:"safety_margin_seconds" validate:"gte=0"`
	TimeoutSeconds      int `yaml:"timeout_seconds" validate:"gte=0"`

	// VerifyTLS defaults to true; nil means unset.
	VerifyTLS *bool `yaml:"verify_tls,omitempty"`
}

// VerifyTLSEnabled returns the effective TLS verification setting.
func (c ControlPlaneConfig) VerifyTLSEnabled() bool {
	if c.VerifyTLS == nil {
		return true
	}
	return *c.VerifyTLS
}

// SessionTTL returns the session TTL as a duration.
func (c ControlPlaneConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// AdaptersConfig holds shared adapter tuning.
type AdaptersConfig struct {
	TimeoutMS   int `yaml:"adapter_timeout_ms" validate:"gte=0"`
	RateLimitMS int `yaml:"per_adapter_rate_limit_ms" validate:"gte=0"`
	MaxRetries  int `yaml:"max_retries" validate:"gte=0"`
}

// Timeout returns the per-adapter hard timeout.
func (c AdaptersConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RateLimit returns the minimum inter-call delay per adapter.
func (c AdaptersConfig) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMS) * time.Millisecond
}

// CacheConfig holds topology cache tuning.
type CacheConfig struct {
	TTLSeconds       int `yaml:"cache_ttl_seconds" validate:"gte=0"`
	StaleGraceCycles int `yaml:"stale_device_grace_cycles" validate:"gte=0"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SourceOverride tunes one discovery source. Priority overrides exist
// because vendor documentation disagrees with itself about source
// orderings; a stricter deployment-specific ordering belongs here, not
// in code.
type SourceOverride struct {
	Enabled     *bool `yaml:"enabled,omitempty"`
	Priority    *int  `yaml:"priority,omitempty"`
	RateLimitMS *int  `yaml:"rate_limit_ms,omitempty"`
}

// SNMPTargetConfig is one statically inventoried SNMP device.
type SNMPTargetConfig struct {
	Name      string `yaml:"name" validate:"required"`
	Host      string `yaml:"host" validate:"required"`
	Port      uint16 `yaml:"port"`
	Community string `yaml:"community"`
}

// SNMPConfig holds the fallback SNMP inventory.
type SNMPConfig struct {
	Community      string             `yaml:"community"`
	TimeoutSeconds int                `yaml:"timeout_seconds" validate:"gte=0"`
	Targets        []SNMPTargetConfig `yaml:"targets,omitempty" validate:"dive"`
}

// SecondaryVendorConfig holds the secondary cloud vendor's API settings.
type SecondaryVendorConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
}

// SourceEnabled reports whether a source is enabled (default true).
func (c *Config) SourceEnabled(src domain.Source) bool {
	if o, ok := c.Sources[string(src)]; ok && o.Enabled != nil {
		return *o.Enabled
	}
	return true
}

// PriorityMap returns the merge priority ordering with any configured
// per-source overrides applied.
func (c *Config) PriorityMap() map[domain.Source]int {
	m := domain.DefaultPriority()
	for name, o := range c.Sources {
		if o.Priority != nil {
			m[domain.Source(name)] = *o.Priority
		}
	}
	return m
}

// SourceRateLimit returns the effective rate limit for a source.
func (c *Config) SourceRateLimit(src domain.Source) time.Duration {
	if o, ok := c.Sources[string(src)]; ok && o.RateLimitMS != nil {
		return time.Duration(*o.RateLimitMS) * time.Millisecond
	}
	return c.Adapters.RateLimit()
}
