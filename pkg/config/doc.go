// Package config loads typed configuration from the environment.
//
// Structs declare their variables with caarlos0/env tags. A .env file in the
// working directory is read once per process before the first parse, and every
// type is parsed once and then served from a cache:
//
//	type StripeConfig struct {
//		SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
//		WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
//	}
//
//	cfg, err := config.Load[StripeConfig]()
//
// WithPrefix namespaces the variables of a struct, which lets one Config type
// describe several instances (e.g. two Redis connections).
package config
