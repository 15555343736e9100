package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken  string
	DatabaseDSN   string
	GuildID       string
	CommandPrefix string
	LogLevel      string

	Voice        VoiceConfig
	Tasks        TaskConfig
	Stats        StatsConfig
	Roles        RoleConfig
	Channels     ChannelConfig
	Applications ApplicationConfig
}

type VoiceConfig struct {
	AFKChannelID    string
	// TargetChannelID is a voice channel the bot sits in, muted and deafened, while running.
	TargetChannelID string
	FlushInterval   time.Duration
}

type TaskConfig struct {
	SweepInterval time.Duration
	DefaultDays   int
}

type StatsConfig struct {
	Location *time.Location
	// Strict wraps each activity event (stats upsert and task progress) in one transaction.
	Strict bool
}

type RoleConfig struct {
	SpecialAdminRoleID string
	AuthorizedRoleIDs  []string
	StaffRoleID        string
}

type ChannelConfig struct {
	TaskLogChannelID string
	PartnerChannelID string
}

type ApplicationConfig struct {
	ChannelID    string
	LogChannelID string
	Cooldown     time.Duration
	StepTimeout  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	config := &Config{
		DiscordToken:  getenv("DISCORD_TOKEN"),
		DatabaseDSN:   getenv("DATABASE_DSN"),
		GuildID:       getenv("GUILD_ID"),
		CommandPrefix: stringOr(getenv("COMMAND_PREFIX"), "."),
		LogLevel:      stringOr(getenv("LOG_LEVEL"), "info"),
		Roles: RoleConfig{
			SpecialAdminRoleID: getenv("SPECIAL_ADMIN_ROLE_ID"),
			AuthorizedRoleIDs:  splitList(getenv("AUTHORIZED_ROLE_IDS")),
			StaffRoleID:        getenv("STAFF_ROLE_ID"),
		},
		Channels: ChannelConfig{
			TaskLogChannelID: getenv("TASK_LOG_CHANNEL_ID"),
			PartnerChannelID: getenv("PARTNER_CHANNEL_ID"),
		},
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DatabaseDSN == "" {
		return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required"}
	}

	var err error
	config.Voice.AFKChannelID = getenv("AFK_CHANNEL_ID")
	config.Voice.TargetChannelID = getenv("TARGET_VOICE_CHANNEL_ID")
	if config.Voice.FlushInterval, err = duration(getenv, "VOICE_FLUSH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if config.Tasks.SweepInterval, err = duration(getenv, "TASK_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if config.Tasks.DefaultDays, err = integer(getenv, "DEFAULT_TASK_DAYS", 7); err != nil {
		return nil, err
	}
	if config.Tasks.DefaultDays < 0 {
		return nil, &ConfigError{Field: "DEFAULT_TASK_DAYS", Message: "DEFAULT_TASK_DAYS must not be negative"}
	}

	tz := stringOr(getenv("STATS_TIMEZONE"), "UTC")
	if config.Stats.Location, err = time.LoadLocation(tz); err != nil {
		return nil, &ConfigError{Field: "STATS_TIMEZONE", Message: "STATS_TIMEZONE is not a valid time zone: " + tz}
	}
	if v := getenv("STRICT_ACCOUNTING"); v != "" {
		if config.Stats.Strict, err = strconv.ParseBool(v); err != nil {
			return nil, &ConfigError{Field: "STRICT_ACCOUNTING", Message: "STRICT_ACCOUNTING must be a boolean"}
		}
	}

	config.Applications.ChannelID = getenv("APPLICATION_CHANNEL_ID")
	config.Applications.LogChannelID = getenv("APPLICATION_LOG_CHANNEL_ID")
	if config.Applications.Cooldown, err = duration(getenv, "APPLICATION_COOLDOWN", 24*time.Hour); err != nil {
		return nil, err
	}
	if config.Applications.StepTimeout, err = duration(getenv, "APPLICATION_STEP_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}

	return config, nil
}

// TaskManagerRoles returns the roles allowed to view task progress, special admin included.
func (c *Config) TaskManagerRoles() []string {
	roles := make([]string, 0, len(c.Roles.AuthorizedRoleIDs)+1)
	roles = append(roles, c.Roles.AuthorizedRoleIDs...)
	if c.Roles.SpecialAdminRoleID != "" {
		roles = append(roles, c.Roles.SpecialAdminRoleID)
	}
	return roles
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, &ConfigError{Field: key, Message: key + " must be a positive duration"}
	}
	return d, nil
}

func integer(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: key + " must be an integer"}
	}
	return n, nil
}
