package config

import "os"

// Load builds the configuration from defaults plus environment overrides.
// Env names match the operator documentation: TOWER_BASE_URL,
// TOWER_STREAM_URL, HTTP_PORT, POLICY_FILE, and the SMTP_/DISPATCH_ group.
func Load() *Config {
	cfg := Default()

	setIfPresent(&cfg.Tower.BaseURL, "TOWER_BASE_URL")
	setIfPresent(&cfg.Tower.StreamURL, "TOWER_STREAM_URL")
	setIfPresent(&cfg.HTTPPort, "HTTP_PORT")
	setIfPresent(&cfg.PolicyFile, "POLICY_FILE")

	setIfPresent(&cfg.Mailer.SMTPHost, "SMTP_HOST")
	setIfPresent(&cfg.Mailer.SMTPPort, "SMTP_PORT")
	setIfPresent(&cfg.Mailer.Username, "SMTP_USER")
	setIfPresent(&cfg.Mailer.Password, "SMTP_PASS")
	setIfPresent(&cfg.Mailer.From, "DISPATCH_FROM")
	setIfPresent(&cfg.Mailer.To, "DISPATCH_TO")

	return cfg
}

func setIfPresent(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
