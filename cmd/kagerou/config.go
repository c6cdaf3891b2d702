// cmd/kagerou/config.go
package main

import "fmt"

// Config holds process configuration loaded from the environment. Subjects
// live in a separate yaml file (see subjects.go) so they can be edited and
// reloaded at runtime.
type Config struct {
	// Discord
	BotToken string
	AppID    string
	GuildID  string

	// Polling
	PollIntervalSeconds int
	MaxItemsPerPoll     int
	StartupJitterSecs   int
	FetchTimeoutSecs    int
	SendTimeoutSecs     int
	FirstPollDefault    FirstPollPolicy

	// Delivery pacing
	SendRatePerSecond float64
	SendBurst         int

	// Sources, tried in order until one succeeds
	SourceOrder      []string
	NitterBaseURLs   []string
	ProxyAPIBaseURL  string
	ProxyBearerToken string
	ScrapeBaseURL    string
	UserAgent        string

	// Preview companion links; when set, video posts get a companion URL
	// pointing at previewd instead of the raw media URL
	PreviewBaseURL string

	// State
	StateBackend string // "json" or "sqlite"
	StatePath    string
	SubjectsPath string

	// Status server
	StatusPort int

	// Logging
	LogPath  string
	LogLevel LogLevel
}

// LoadConfig reads configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		BotToken: GetEnvString("BOT_TOKEN", ""),
		AppID:    GetEnvString("APP_ID", ""),
		GuildID:  GetEnvString("GUILD_ID", ""),

		PollIntervalSeconds: GetEnvInt("POLL_INTERVAL_SECONDS", 60),
		MaxItemsPerPoll:     GetEnvInt("MAX_ITEMS_PER_POLL", 20),
		StartupJitterSecs:   GetEnvInt("STARTUP_JITTER_SECONDS", 15),
		FetchTimeoutSecs:    GetEnvInt("FETCH_TIMEOUT_SECONDS", 30),
		SendTimeoutSecs:     GetEnvInt("SEND_TIMEOUT_SECONDS", 15),
		FirstPollDefault:    FirstPollPolicy(GetEnvString("FIRST_POLL_POLICY", string(SkipBacklogOnFirstPoll))),

		SendRatePerSecond: GetEnvFloat("SEND_RATE_PER_SECOND", 1),
		SendBurst:         GetEnvInt("SEND_BURST", 1),

		SourceOrder:      GetEnvStringSlice("SOURCE_ORDER", []string{"proxy", "nitter", "scrape"}),
		NitterBaseURLs:   GetEnvStringSlice("NITTER_BASE_URLS", []string{"https://nitter.net"}),
		ProxyAPIBaseURL:  GetEnvString("PROXY_API_BASE_URL", ""),
		ProxyBearerToken: GetEnvString("PROXY_BEARER_TOKEN", ""),
		ScrapeBaseURL:    GetEnvString("SCRAPE_BASE_URL", "https://x.com"),
		UserAgent:        GetEnvString("USER_AGENT", "KagerouBot/"+VERSION),

		PreviewBaseURL: GetEnvString("PREVIEW_BASE_URL", ""),

		StateBackend: GetEnvString("STATE_BACKEND", "json"),
		StatePath:    GetEnvString("STATE_PATH", "data/markers.json"),
		SubjectsPath: GetEnvString("SUBJECTS_PATH", "config/subjects.yml"),

		StatusPort: GetEnvInt("STATUS_PORT", 8080),

		LogPath:  GetEnvString("LOG_PATH", "data/logs/kagerou.log"),
		LogLevel: LogLevel(GetEnvInt("LOG_LEVEL", int(LogInfo))),
	}
}

// Validate checks for configuration errors that must stop startup. These are
// the only fatal errors in the process; everything after scheduling begins is
// logged and retried.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return NewError(ErrorTypeConfig, ErrCodeConfigInvalid, "BOT_TOKEN is required", nil)
	}
	if c.AppID == "" {
		return NewError(ErrorTypeConfig, ErrCodeConfigInvalid, "APP_ID is required", nil)
	}
	switch c.FirstPollDefault {
	case SkipBacklogOnFirstPoll, DeliverBacklogOnFirstPoll:
	default:
		return NewError(ErrorTypeConfig, ErrCodeConfigInvalid,
			fmt.Sprintf("FIRST_POLL_POLICY must be %q or %q", SkipBacklogOnFirstPoll, DeliverBacklogOnFirstPoll), nil)
	}
	switch c.StateBackend {
	case "json", "sqlite":
	default:
		return NewError(ErrorTypeConfig, ErrCodeConfigInvalid, "STATE_BACKEND must be json or sqlite", nil)
	}
	if len(c.SourceOrder) == 0 {
		return NewError(ErrorTypeConfig, ErrCodeConfigInvalid, "SOURCE_ORDER must name at least one source", nil)
	}
	return nil
}
