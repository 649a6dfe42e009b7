package usecase

import (
	"fmt"
	"strings"
)

// Placeholder secrets that ship in documentation and example env files.
// Accepting one of these in production would let anyone forge webhook
// deliveries, so startup refuses the configuration outright.
var placeholderWebhookSecrets = map[string]struct{}{
	"whsec_test":                       {},
	"whsec_test_secret":                {},
	"whsec_1234567890abcdef":           {},
	"whsec_xxxxxxxxxxxxxxxxxxxxxxxxxx": {},
	"whsec_your_webhook_secret_here":   {},
	"whsec_replace_me":                 {},
	"whsec_changeme":                   {},
	"whsec_example":                    {},
	"whsec_00000000000000000000000000": {},
}

// ValidateWebhookSecret rejects missing or placeholder webhook signing
// secrets. In production a test/placeholder secret is a fatal configuration
// error; outside production it is allowed so local Stripe CLI secrets work.
func ValidateWebhookSecret(secret, environment string) error {
	if secret == "" {
		return fmt.Errorf("webhook signing secret is not configured")
	}
	if !strings.HasPrefix(secret, "whsec_") {
		return fmt.Errorf("webhook signing secret has unexpected format")
	}

	if environment != "production" {
		return nil
	}

	if isPlaceholderWebhookSecret(secret) {
		return fmt.Errorf("webhook signing secret is a test/placeholder value; refusing to accept events in production")
	}
	return nil
}

func isPlaceholderWebhookSecret(secret string) bool {
	if _, ok := placeholderWebhookSecrets[secret]; ok {
		return true
	}
	return strings.HasPrefix(secret, "whsec_test")
}
