package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config holds beacon's application settings. Ambient concerns (logging,
// tracing, ops listener) register their own configs in main.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	// Incident storage. DatabaseURL wins over IncidentsFile; both empty
	// selects the in-memory store.
	DatabaseURL     string
	IncidentsFile   string
	SlowQueryMillis int

	// On-call resolution.
	ContactsFile           string
	CalendarID             string
	GoogleCredentialsFile  string
	ScheduleWindowDays     int
	ScheduleTimeoutSeconds int

	// Routing.
	RenotifyIntervalSeconds int
	RecoveryMarker          string

	// Delivery.
	DeliveryTimeoutSeconds int
	PushoverToken          string
	PushoverRetrySeconds   int
	PushoverExpireSeconds  int
	TelegramBotToken       string
	TelegramChatID         string
	SlackWebhookURL        string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests, also accepted as ?token= (empty = no auth)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = file or in-memory store)")
	fs.StringVar(&c.IncidentsFile, "incidents-file", "incidents.json", "JSON incident store path when no database is configured (empty = in-memory store)")
	fs.IntVar(&c.SlowQueryMillis, "slow-query-ms", 200, "log successful database queries slower than this many milliseconds (0 = log all)")

	fs.StringVar(&c.ContactsFile, "contacts-file", "contacts.json", "JSON file mapping on-call names to contact addresses")
	fs.StringVar(&c.CalendarID, "calendar-id", "", "Google Calendar ID holding the on-call rotation")
	fs.StringVar(&c.GoogleCredentialsFile, "google-credentials-file", "", "service account credentials for the calendar (empty = application default credentials)")
	fs.IntVar(&c.ScheduleWindowDays, "schedule-window-days", 7, "days ahead of now to query the rotation calendar (1..31)")
	fs.IntVar(&c.ScheduleTimeoutSeconds, "schedule-timeout-seconds", 10, "timeout for one on-call lookup (1..120)")

	fs.IntVar(&c.RenotifyIntervalSeconds, "renotify-interval-seconds", 86400, "minimum seconds between notifications for one firing incident")
	fs.StringVar(&c.RecoveryMarker, "recovery-marker", "Up", "case-sensitive substring of the alert message that marks a recovery")

	fs.IntVar(&c.DeliveryTimeoutSeconds, "delivery-timeout-seconds", 10, "timeout for a single notification delivery (1..120)")
	fs.StringVar(&c.PushoverToken, "pushover-token", "", "Pushover application token for per-person push delivery")
	fs.IntVar(&c.PushoverRetrySeconds, "pushover-retry-seconds", 60, "Pushover emergency retry interval (>= 30)")
	fs.IntVar(&c.PushoverExpireSeconds, "pushover-expire-seconds", 3600, "Pushover emergency expiry (<= 10800)")
	fs.StringVar(&c.TelegramBotToken, "telegram-bot-token", "", "Telegram bot token for chat delivery")
	fs.StringVar(&c.TelegramChatID, "telegram-chat-id", "", "Telegram group chat that receives every alert and resolution")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack incoming webhook that receives every alert and resolution")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SlowQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid SLOW_QUERY_MS %d (must be >= 0)", c.SlowQueryMillis))
	}

	// The rotation calendar and the contact directory are the only way to find a human
	if c.CalendarID == "" {
		errs = append(errs, errors.New("CALENDAR_ID is required"))
	}
	if c.ContactsFile == "" {
		errs = append(errs, errors.New("CONTACTS_FILE is required"))
	}
	if c.ScheduleWindowDays <= 0 || c.ScheduleWindowDays > 31 {
		errs = append(errs, fmt.Errorf("invalid SCHEDULE_WINDOW_DAYS %d (must be 1..31)", c.ScheduleWindowDays))
	}
	if c.ScheduleTimeoutSeconds <= 0 || c.ScheduleTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid SCHEDULE_TIMEOUT_SECONDS %d (must be 1..120)", c.ScheduleTimeoutSeconds))
	}

	if c.RenotifyIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid RENOTIFY_INTERVAL_SECONDS %d (must be > 0)", c.RenotifyIntervalSeconds))
	}
	if strings.TrimSpace(c.RecoveryMarker) == "" {
		errs = append(errs, errors.New("RECOVERY_MARKER is required"))
	}

	if c.DeliveryTimeoutSeconds <= 0 || c.DeliveryTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid DELIVERY_TIMEOUT_SECONDS %d (must be 1..120)", c.DeliveryTimeoutSeconds))
	}

	// Push is the per-person channel, without it nobody is paged
	if c.PushoverToken == "" {
		errs = append(errs, errors.New("PUSHOVER_TOKEN is required"))
	}
	if c.PushoverRetrySeconds < 30 {
		errs = append(errs, fmt.Errorf("invalid PUSHOVER_RETRY_SECONDS %d (must be >= 30)", c.PushoverRetrySeconds))
	}
	if c.PushoverExpireSeconds <= 0 || c.PushoverExpireSeconds > 10800 {
		errs = append(errs, fmt.Errorf("invalid PUSHOVER_EXPIRE_SECONDS %d (must be 1..10800)", c.PushoverExpireSeconds))
	}
	if c.TelegramChatID != "" && c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required when TELEGRAM_CHAT_ID is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Renotify returns the renotify interval as a duration.
func (c *Config) Renotify() time.Duration {
	return time.Duration(c.RenotifyIntervalSeconds) * time.Second
}

// ScheduleWindow returns how far ahead the rotation calendar is queried.
func (c *Config) ScheduleWindow() time.Duration {
	return time.Duration(c.ScheduleWindowDays) * 24 * time.Hour
}

// ScheduleTimeout bounds one on-call lookup.
func (c *Config) ScheduleTimeout() time.Duration {
	return time.Duration(c.ScheduleTimeoutSeconds) * time.Second
}

// DeliveryTimeout bounds one notification delivery.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

// SlowQuery is the threshold above which successful queries are logged.
func (c *Config) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryMillis) * time.Millisecond
}
