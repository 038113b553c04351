package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the root of the service's configuration tree. The fields named
// in spec.md §6 have environment-variable overrides (see applyEnvOverrides);
// the remaining fields are set from the config file or Default only.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Messaging     MessagingConfig     `yaml:"messaging"`
	Calendar      CalendarConfig      `yaml:"calendar"`
	Agent         AgentConfig         `yaml:"agent"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Qualification QualificationConfig `yaml:"qualification"`
}

// ServerConfig controls the HTTP/WS listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig configures the relational store connection.
type StoreConfig struct {
	URL             string        `yaml:"url"`
	ServiceKey      string        `yaml:"service_key"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// MessagingConfig configures the C3 Messaging Client.
type MessagingConfig struct {
	WebhookVerifyToken string `yaml:"webhook_verify_token"`
	AccessToken        string `yaml:"access_token"`
	AppSecret          string `yaml:"app_secret"`
	PhoneNumberID      string `yaml:"phone_number_id"`
	SendTimeout        time.Duration `yaml:"send_timeout"`
	// SendRatePerSecond caps outbound sends client-side, ahead of the
	// provider's own throttling. 0 uses messaging.defaultSendRate.
	SendRatePerSecond  float64 `yaml:"send_rate_per_second"`
}

// CalendarConfig configures the C2 Calendar Client.
type CalendarConfig struct {
	TenantID       string        `yaml:"tenant_id"`
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	UserEmail      string        `yaml:"user_email"`
	Timezone       string        `yaml:"timezone"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	WorkdayStart   string        `yaml:"workday_start"` // "09:00"
	WorkdayEnd     string        `yaml:"workday_end"`   // "18:00"
}

// AgentConfig configures the C4 Agent Runtime's LLM backend.
type AgentConfig struct {
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	HistoryWindow int           `yaml:"history_window"` // N in spec.md §4.4, default 10
	TurnTimeout   time.Duration `yaml:"turn_timeout"`
}

// GatewayConfig tunes the C8 Session Fan-Out hub.
type GatewayConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	SendBufferSize    int           `yaml:"send_buffer_size"`
	JWTSecret         string        `yaml:"jwt_secret"`
}

// QualificationConfig tunes the timeout sweep in spec.md §4.6.
type QualificationConfig struct {
	AbandonAfter  time.Duration `yaml:"abandon_after"`  // default 7 * 24h
	SweepInterval time.Duration `yaml:"sweep_interval"` // default 15m
}

// Default returns a Config populated with the defaults named in spec.md.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Store: StoreConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Messaging: MessagingConfig{
			SendTimeout: 10 * time.Second,
		},
		Calendar: CalendarConfig{
			Timezone:       "UTC",
			RequestTimeout: 30 * time.Second,
			WorkdayStart:   "09:00",
			WorkdayEnd:     "18:00",
		},
		Agent: AgentConfig{
			HistoryWindow: 10,
			TurnTimeout:   60 * time.Second,
		},
		Gateway: GatewayConfig{
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTimeout:  120 * time.Second,
			SendBufferSize:    256,
		},
		Qualification: QualificationConfig{
			AbandonAfter:  7 * 24 * time.Hour,
			SweepInterval: 15 * time.Minute,
		},
	}
}

// applyEnvOverrides layers the environment variables named in spec.md §6
// on top of whatever the config file set, env taking precedence.
func (c *Config) applyEnvOverrides() {
	strOverride(&c.Messaging.WebhookVerifyToken, "WEBHOOK_VERIFY_TOKEN")
	strOverride(&c.Messaging.AccessToken, "MESSAGING_ACCESS_TOKEN")
	strOverride(&c.Messaging.AppSecret, "MESSAGING_APP_SECRET")
	strOverride(&c.Messaging.PhoneNumberID, "MESSAGING_PHONE_NUMBER_ID")

	strOverride(&c.Calendar.TenantID, "CALENDAR_TENANT_ID")
	strOverride(&c.Calendar.ClientID, "CALENDAR_CLIENT_ID")
	strOverride(&c.Calendar.ClientSecret, "CALENDAR_CLIENT_SECRET")
	strOverride(&c.Calendar.UserEmail, "CALENDAR_USER_EMAIL")
	strOverride(&c.Calendar.Timezone, "TIMEZONE")

	strOverride(&c.Store.URL, "STORE_URL")
	strOverride(&c.Store.ServiceKey, "STORE_SERVICE_KEY")

	strOverride(&c.Agent.APIKey, "LLM_API_KEY")
	strOverride(&c.Agent.Model, "LLM_MODEL")

	if port, ok := intFromEnv("PORT"); ok {
		c.Server.Port = port
	}
}

func strOverride(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func intFromEnv(env string) (int, bool) {
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
