package payments

import (
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers/nuvei"
	"github.com/goliatone/go-payments/providers/stripe"
)

func NuveiProvider(cfg nuvei.Config, opts ...nuvei.Option) (core.Provider, error) {
	return nuvei.New(cfg, opts...)
}

func StripeProvider(cfg stripe.Config, opts ...stripe.Option) (core.Provider, error) {
	return stripe.New(cfg, opts...)
}
