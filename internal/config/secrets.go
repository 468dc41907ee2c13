package config

const redacted = "***"

// RedactedConfig returns a copy of cfg safe to print from `resolver config
// check`: database, Redis, S3, game-data, API and notifier credentials are
// replaced with "***". Slices are copied.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, secret := range out.secrets() {
		if *secret != "" {
			*secret = redacted
		}
	}
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	return out
}

// secrets lists every credential field of c.
func (c *Config) secrets() []*string {
	return []*string{
		&c.Supabase.DSN,
		&c.Supabase.Password,
		&c.Redis.Password,
		&c.S3.AccessKey,
		&c.S3.SecretKey,
		&c.GameData.APIKey,
		&c.Server.APIKey,
		&c.Notify.TelegramToken,
		&c.Notify.DiscordWebhookURL,
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
