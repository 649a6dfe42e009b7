package config

type ServiceConfig struct {
	Name                string `yaml:"name"`
	Environment         string `yaml:"environment"`
	Version             string `yaml:"version"`
	ClientURL           string `yaml:"client_url"`
	StripeSecretKey     string `yaml:"stripe_secret_key"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`
}

// IsProduction reports whether the service runs with production settings.
func (c *ServiceConfig) IsProduction() bool {
	return c.Environment == "production"
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	FilePath    string `yaml:"file_path"`
	Development bool   `yaml:"development"`
}
