package nuvei

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
)

const (
	ProviderID = "nuvei"

	EnvironmentStaging    = "stg"
	EnvironmentProduction = "prod"

	StagingBaseURL    = "https://noccapi-stg.paymentez.com"
	ProductionBaseURL = "https://noccapi.paymentez.com"

	initOrderPath = "/linktopay/init_order/"
)

type Config struct {
	Environment string
	BaseURL     string

	// AppCode and AppKey sign LinkToPay order requests.
	AppCode string
	AppKey  string
	// ServerAppCode and ServerAppKey sign callback tokens. They fall back to
	// the client credentials when empty.
	ServerAppCode string
	ServerAppKey  string

	Description           string
	ExpirationDays        int
	AllowedPaymentMethods []string
	RedirectURLs          core.RedirectURLs
	Timeout               time.Duration
}

func DefaultConfig() Config {
	return Config{
		Environment:           EnvironmentStaging,
		Description:           "Balance deposit",
		ExpirationDays:        1,
		AllowedPaymentMethods: []string{"All"},
		Timeout:               30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	c.Environment = strings.TrimSpace(strings.ToLower(c.Environment))
	if c.Environment == "" {
		c.Environment = defaults.Environment
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = StagingBaseURL
		if c.Environment == EnvironmentProduction {
			c.BaseURL = ProductionBaseURL
		}
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.AppCode = strings.TrimSpace(c.AppCode)
	c.AppKey = strings.TrimSpace(c.AppKey)
	c.ServerAppCode = strings.TrimSpace(c.ServerAppCode)
	c.ServerAppKey = strings.TrimSpace(c.ServerAppKey)
	if c.ServerAppCode == "" {
		c.ServerAppCode = c.AppCode
	}
	if c.ServerAppKey == "" {
		c.ServerAppKey = c.AppKey
	}
	if strings.TrimSpace(c.Description) == "" {
		c.Description = defaults.Description
	}
	if c.ExpirationDays <= 0 {
		c.ExpirationDays = defaults.ExpirationDays
	}
	if len(c.AllowedPaymentMethods) == 0 {
		c.AllowedPaymentMethods = defaults.AllowedPaymentMethods
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}

func (c Config) validate() error {
	if c.Environment != EnvironmentStaging && c.Environment != EnvironmentProduction {
		return fmt.Errorf("providers/nuvei: unsupported environment %q", c.Environment)
	}
	if c.AppCode == "" || c.AppKey == "" {
		return fmt.Errorf("providers/nuvei: app code and app key are required")
	}
	return nil
}
