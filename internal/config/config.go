package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/semmidev/dumpgram/internal/domain"
	"github.com/semmidev/dumpgram/internal/infrastructure/scheduler"
)

const envPrefix = "DUMPGRAM"

var (
	botTokenPattern = regexp.MustCompile(`^\d{6,12}:[A-Za-z0-9_-]{35}$`)
	chatIDPattern   = regexp.MustCompile(`^\d{6,12}$`)
)

type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Databases []DatabaseConfig `mapstructure:"databases"`
	Backup    BackupConfig     `mapstructure:"backup"`
	Delivery  DeliveryConfig   `mapstructure:"delivery"`
	Trigger   TriggerConfig    `mapstructure:"trigger"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFile   string `mapstructure:"log_file"`
	LogFormat string `mapstructure:"log_format"`
}

type DatabaseConfig struct {
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
}

type BackupConfig struct {
	Dir                     string `mapstructure:"dir"`
	ArchiveName             string `mapstructure:"archive_name"`
	Parallelism             int    `mapstructure:"parallelism"`
	RetentionDays           int    `mapstructure:"retention_days"`
	CleanupOnPackageFailure bool   `mapstructure:"cleanup_on_package_failure"`
	CaptionTimezone         string `mapstructure:"caption_timezone"`
	Schedule                string `mapstructure:"schedule"`

	// ConnectTimeout bounds dialing each database; reads get ten times as long.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type DeliveryConfig struct {
	Provider string         `mapstructure:"provider"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	S3       S3Config       `mapstructure:"s3"`
	GDrive   GDriveConfig   `mapstructure:"gdrive"`
}

type TelegramConfig struct {
	BotToken    string `mapstructure:"bot_token"`
	ChatID      string `mapstructure:"chat_id"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`

	// S3-compatible endpoint such as MinIO; enables path-style addressing.
	Endpoint string `mapstructure:"endpoint"`
}

type GDriveConfig struct {
	// Service account key file.
	CredentialsFile string `mapstructure:"credentials_file"`

	// OAuth client secret plus a refresh token obtained with -gdrive-auth.
	ClientSecretFile string `mapstructure:"client_secret_file"`
	RefreshToken     string `mapstructure:"refresh_token"`

	FolderID string `mapstructure:"folder_id"`
}

type TriggerConfig struct {
	Listen string `mapstructure:"listen"`
	Key    string `mapstructure:"key"`
}

// Load reads a YAML or JSON config file (chosen by extension) and applies
// DUMPGRAM_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dumpgram")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.archive_name", "backup.zip")
	v.SetDefault("backup.parallelism", 1)
	v.SetDefault("backup.retention_days", 0)
	v.SetDefault("backup.cleanup_on_package_failure", false)
	v.SetDefault("backup.caption_timezone", "Local")
	v.SetDefault("backup.schedule", "")
	v.SetDefault("backup.connect_timeout", 30*time.Second)

	v.SetDefault("delivery.provider", "telegram")
	v.SetDefault("delivery.timeout", 5*time.Minute)
	v.SetDefault("delivery.telegram.bot_token", "")
	v.SetDefault("delivery.telegram.chat_id", "")
	v.SetDefault("delivery.telegram.api_endpoint", "")
	v.SetDefault("delivery.s3.prefix", "")
	v.SetDefault("delivery.s3.endpoint", "")

	v.SetDefault("trigger.listen", "")
	v.SetDefault("trigger.key", "")
}

func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Databases))
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("database[%d]: name is required", i)
		}
		if strings.ContainsAny(db.Name, `/\`) || db.Name == "." || db.Name == ".." {
			return fmt.Errorf("database[%d]: name %q must not contain path separators", i, db.Name)
		}
		if seen[db.Name] {
			return fmt.Errorf("database[%d]: duplicate name %q", i, db.Name)
		}
		seen[db.Name] = true
		if db.Username == "" {
			return fmt.Errorf("database[%d]: username is required", i)
		}
		if db.Port < 0 || db.Port > 65535 {
			return fmt.Errorf("database[%d]: invalid port %d", i, db.Port)
		}
	}

	if c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir is required")
	}
	name := c.Backup.ArchiveName
	if name == "" || filepath.Base(name) != name || !strings.EqualFold(filepath.Ext(name), ".zip") {
		return fmt.Errorf("backup.archive_name %q must be a plain file name ending in .zip", name)
	}
	if c.Backup.Parallelism < 1 {
		return fmt.Errorf("backup.parallelism must be at least 1")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}
	if _, err := time.LoadLocation(c.Backup.CaptionTimezone); err != nil {
		return fmt.Errorf("backup.caption_timezone: %w", err)
	}
	if c.Backup.Schedule != "" {
		if _, err := scheduler.Parser.Parse(c.Backup.Schedule); err != nil {
			return fmt.Errorf("backup.schedule: %w", err)
		}
	}

	if err := c.Delivery.validate(); err != nil {
		return err
	}

	if c.Trigger.Listen != "" && c.Trigger.Key == "" {
		return fmt.Errorf("trigger.key is required when trigger.listen is set")
	}

	return nil
}

func (d *DeliveryConfig) validate() error {
	if d.Timeout <= 0 {
		return fmt.Errorf("delivery.timeout must be positive")
	}

	switch d.Provider {
	case "telegram":
		if !IsValidBotToken(d.Telegram.BotToken) {
			return fmt.Errorf("delivery.telegram.bot_token is not a valid bot token")
		}
		if !IsValidChatID(d.Telegram.ChatID) {
			return fmt.Errorf("delivery.telegram.chat_id must be a numeric id")
		}
	case "s3":
		if d.S3.Bucket == "" || d.S3.Region == "" {
			return fmt.Errorf("delivery.s3: bucket and region are required")
		}
	case "gdrive":
		if d.GDrive.FolderID == "" {
			return fmt.Errorf("delivery.gdrive.folder_id is required")
		}
		oauth := d.GDrive.ClientSecretFile != "" && d.GDrive.RefreshToken != ""
		if d.GDrive.CredentialsFile == "" && !oauth {
			return fmt.Errorf("delivery.gdrive: credentials_file or client_secret_file with refresh_token is required")
		}
	default:
		return fmt.Errorf("unknown delivery.provider %q", d.Provider)
	}

	return nil
}

func IsValidBotToken(token string) bool {
	return botTokenPattern.MatchString(token)
}

func IsValidChatID(id string) bool {
	return chatIDPattern.MatchString(id)
}

// Descriptors returns the configured databases in order.
func (c *Config) Descriptors() []domain.DatabaseDescriptor {
	out := make([]domain.DatabaseDescriptor, 0, len(c.Databases))
	for _, db := range c.Databases {
		out = append(out, domain.DatabaseDescriptor{
			Name:     db.Name,
			Username: db.Username,
			Password: db.Password,
			Host:     db.Host,
			Port:     db.Port,
		})
	}
	return out
}

func (c *Config) Target() domain.DeliveryTarget {
	return domain.DeliveryTarget{
		BotToken: c.Delivery.Telegram.BotToken,
		ChatID:   c.Delivery.Telegram.ChatID,
	}
}

func (c *Config) CaptionLocation() *time.Location {
	loc, err := time.LoadLocation(c.Backup.CaptionTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}
