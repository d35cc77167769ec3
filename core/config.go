package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	SweepPolicyAssumePaid   = "assume_paid"
	SweepPolicyAssumeFailed = "assume_failed"
	SweepPolicyLeavePending = "leave_pending"
)

type SweeperConfig struct {
	Disabled     bool          `koanf:"disabled" mapstructure:"disabled"`
	Interval     time.Duration `koanf:"interval" mapstructure:"interval"`
	Quiescence   time.Duration `koanf:"quiescence" mapstructure:"quiescence"`
	BatchSize    int           `koanf:"batch_size" mapstructure:"batch_size"`
	Policy       string        `koanf:"policy" mapstructure:"policy"`
	LockTTL      time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
}

type NotificationConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type Config struct {
	ServiceName   string             `koanf:"service_name" mapstructure:"service_name"`
	Currency      string             `koanf:"currency" mapstructure:"currency"`
	OrderTimeout  time.Duration      `koanf:"order_timeout" mapstructure:"order_timeout"`
	Sweeper       SweeperConfig      `koanf:"sweeper" mapstructure:"sweeper"`
	Notifications NotificationConfig `koanf:"notifications" mapstructure:"notifications"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "payments",
		Currency:     "USD",
		OrderTimeout: 30 * time.Second,
		Sweeper: SweeperConfig{
			Interval:     time.Minute,
			Quiescence:   2 * time.Minute,
			BatchSize:    100,
			Policy:       SweepPolicyAssumePaid,
			LockTTL:      5 * time.Minute,
			PollInterval: time.Second,
		},
		Notifications: NotificationConfig{
			Timeout: 10 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if len(strings.TrimSpace(c.Currency)) != 3 {
		return fmt.Errorf("core: currency must be a three letter code, got %q", c.Currency)
	}
	if c.OrderTimeout <= 0 {
		return fmt.Errorf("core: order_timeout must be positive")
	}
	if c.Notifications.Timeout <= 0 {
		return fmt.Errorf("core: notifications.timeout must be positive")
	}
	return c.Sweeper.Validate()
}

func (c SweeperConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("core: sweeper.interval must be positive")
	}
	if c.Quiescence <= 0 {
		return fmt.Errorf("core: sweeper.quiescence must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("core: sweeper.batch_size must be positive")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("core: sweeper.lock_ttl must be positive")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("core: sweeper.poll_interval must not be negative")
	}
	switch strings.TrimSpace(strings.ToLower(c.Policy)) {
	case SweepPolicyAssumePaid, SweepPolicyAssumeFailed, SweepPolicyLeavePending:
		return nil
	default:
		return fmt.Errorf("core: sweeper.policy %q is invalid", c.Policy)
	}
}
