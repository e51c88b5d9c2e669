package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hairizuanbinnoorazman/rateloop/browser"
	"github.com/hairizuanbinnoorazman/rateloop/clicker"
	"github.com/hairizuanbinnoorazman/rateloop/credential"
	"github.com/hairizuanbinnoorazman/rateloop/database"
	"github.com/hairizuanbinnoorazman/rateloop/internal/randutil"
	"github.com/hairizuanbinnoorazman/rateloop/orchestrator"
	"github.com/hairizuanbinnoorazman/rateloop/retry"
	"github.com/hairizuanbinnoorazman/rateloop/server"
	"github.com/hairizuanbinnoorazman/rateloop/session"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

// Config holds all application configuration.
type Config struct {
	Site        SiteConfig
	Browser     BrowserConfig
	Retry       RetryConfig
	ClickLoop   ClickLoopConfig
	Credentials CredentialsConfig
	Reports     ReportsConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Log         LogConfig
	Server      ServerConfig
	Schedule    ScheduleConfig
}

// SiteConfig holds the target website configuration.
type SiteConfig struct {
	BaseURL           string
	RatePath          string
	NavigationTimeout time.Duration
	PostLoginWaitMin  int
	PostLoginWaitMax  int
	PreLoopWaitMin    int
	PreLoopWaitMax    int
}

// BrowserConfig holds browser and fan-out configuration.
type BrowserConfig struct {
	Headless       bool
	Args           []string
	Install        bool
	ActionTimeout  time.Duration
	MaxConcurrent  int
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
}

// RetryConfig holds the retry policy of the login flow.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

// ClickLoopConfig holds the click loop bounds.
type ClickLoopConfig struct {
	OuterMin      int
	OuterMax      int
	Inner         int
	DelayMin      time.Duration
	DelayMax      time.Duration
	SignalTimeout time.Duration
	Seed          uint64 // non-zero fixes the random sequence
}

// CredentialsConfig holds where credentials are read from.
type CredentialsConfig struct {
	Inline       string
	Path         string
	Passphrase   string
	CreateSample bool
}

// ReportsConfig holds run artifact configuration.
type ReportsConfig struct {
	Dir       string        // storage prefix of run artifacts
	LogDir    string        // local directory of run logs
	TimeLimit time.Duration // zero means unbounded
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	Type              string
	BaseDir           string
	S3Bucket          string
	S3Region          string
	S3Prefix          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PresignExpiry   time.Duration
}

// DatabaseConfig holds run history database configuration.
type DatabaseConfig struct {
	Enabled      bool
	Driver       string
	Path         string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Username     string
	PasswordHash string
}

// ScheduleConfig holds daemon scheduling configuration.
type ScheduleConfig struct {
	Cron       string
	RunOnStart bool
	UIPort     int // zero disables the scheduler dashboard
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("RATELOOP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Legacy variable names
	v.BindEnv("site.base_url", "RATELOOP_SITE_BASE_URL", "NODEWEB")
	v.BindEnv("credentials.inline", "RATELOOP_CREDENTIALS_INLINE", credential.EnvVar)

	// Set defaults
	site := session.DefaultSite()
	v.SetDefault("site.base_url", site.BaseURL)
	v.SetDefault("site.rate_path", site.RatePath)
	v.SetDefault("site.navigation_timeout", site.NavigationTimeout.String())
	v.SetDefault("site.post_login_wait_min", site.PostLoginWait.MinSeconds)
	v.SetDefault("site.post_login_wait_max", site.PostLoginWait.MaxSeconds)
	v.SetDefault("site.pre_loop_wait_min", site.PreLoopWait.MinSeconds)
	v.SetDefault("site.pre_loop_wait_max", site.PreLoopWait.MaxSeconds)

	launch := browser.DefaultLaunchOptions()
	v.SetDefault("browser.headless", launch.Headless)
	v.SetDefault("browser.args", launch.Args)
	v.SetDefault("browser.install", false)
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.max_concurrent", 0)
	v.SetDefault("browser.viewport_width", browser.DefaultViewportWidth)
	v.SetDefault("browser.viewport_height", browser.DefaultViewportHeight)
	v.SetDefault("browser.user_agent", browser.DefaultUserAgent)

	v.SetDefault("retry.max_retries", retry.DefaultMaxRetries)
	v.SetDefault("retry.base_delay", retry.DefaultBaseDelay.String())
	v.SetDefault("retry.multiplier", retry.DefaultMultiplier)

	v.SetDefault("click_loop.outer_min", clicker.DefaultOuterMin)
	v.SetDefault("click_loop.outer_max", clicker.DefaultOuterMax)
	v.SetDefault("click_loop.inner", clicker.DefaultInner)
	v.SetDefault("click_loop.delay_min", clicker.DefaultDelayMin.String())
	v.SetDefault("click_loop.delay_max", clicker.DefaultDelayMax.String())
	v.SetDefault("click_loop.signal_timeout", clicker.DefaultSignalTimeout.String())
	v.SetDefault("click_loop.seed", 0)

	v.SetDefault("credentials.inline", "")
	v.SetDefault("credentials.path", "credentials.json")
	v.SetDefault("credentials.passphrase", "")
	v.SetDefault("credentials.create_sample", true)

	v.SetDefault("reports.dir", "runs")
	v.SetDefault("reports.log_dir", "./logs")
	v.SetDefault("reports.time_limit", "0s")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_dir", "./reports")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_prefix", "")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_access_key_id", "")
	v.SetDefault("storage.s3_secret_access_key", "")
	v.SetDefault("storage.s3_presign_expiry", "15m")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.path", "rateloop.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "rateloop")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("log.level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.username", "admin")
	v.SetDefault("server.password_hash", "")

	v.SetDefault("schedule.cron", "0 */6 * * *")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("schedule.ui_port", 0)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults
	}

	// Parse configuration
	var config Config

	config.Site.BaseURL = v.GetString("site.base_url")
	config.Site.RatePath = v.GetString("site.rate_path")
	config.Site.NavigationTimeout = v.GetDuration("site.navigation_timeout")
	config.Site.PostLoginWaitMin = v.GetInt("site.post_login_wait_min")
	config.Site.PostLoginWaitMax = v.GetInt("site.post_login_wait_max")
	config.Site.PreLoopWaitMin = v.GetInt("site.pre_loop_wait_min")
	config.Site.PreLoopWaitMax = v.GetInt("site.pre_loop_wait_max")

	config.Browser.Headless = v.GetBool("browser.headless")
	config.Browser.Args = v.GetStringSlice("browser.args")
	config.Browser.Install = v.GetBool("browser.install")
	config.Browser.ActionTimeout = v.GetDuration("browser.action_timeout")
	config.Browser.MaxConcurrent = v.GetInt("browser.max_concurrent")
	config.Browser.ViewportWidth = v.GetInt("browser.viewport_width")
	config.Browser.ViewportHeight = v.GetInt("browser.viewport_height")
	config.Browser.UserAgent = v.GetString("browser.user_agent")

	config.Retry.MaxRetries = v.GetInt("retry.max_retries")
	config.Retry.BaseDelay = v.GetDuration("retry.base_delay")
	config.Retry.Multiplier = v.GetFloat64("retry.multiplier")

	config.ClickLoop.OuterMin = v.GetInt("click_loop.outer_min")
	config.ClickLoop.OuterMax = v.GetInt("click_loop.outer_max")
	config.ClickLoop.Inner = v.GetInt("click_loop.inner")
	config.ClickLoop.DelayMin = v.GetDuration("click_loop.delay_min")
	config.ClickLoop.DelayMax = v.GetDuration("click_loop.delay_max")
	config.ClickLoop.SignalTimeout = v.GetDuration("click_loop.signal_timeout")
	config.ClickLoop.Seed = v.GetUint64("click_loop.seed")

	config.Credentials.Inline = v.GetString("credentials.inline")
	config.Credentials.Path = v.GetString("credentials.path")
	config.Credentials.Passphrase = v.GetString("credentials.passphrase")
	config.Credentials.CreateSample = v.GetBool("credentials.create_sample")

	config.Reports.Dir = v.GetString("reports.dir")
	config.Reports.LogDir = v.GetString("reports.log_dir")
	config.Reports.TimeLimit = v.GetDuration("reports.time_limit")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.S3Bucket = v.GetString("storage.s3_bucket")
	config.Storage.S3Region = v.GetString("storage.s3_region")
	config.Storage.S3Prefix = v.GetString("storage.s3_prefix")
	config.Storage.S3Endpoint = v.GetString("storage.s3_endpoint")
	config.Storage.S3AccessKeyID = v.GetString("storage.s3_access_key_id")
	config.Storage.S3SecretAccessKey = v.GetString("storage.s3_secret_access_key")
	config.Storage.S3PresignExpiry = v.GetDuration("storage.s3_presign_expiry")

	config.Database.Enabled = v.GetBool("database.enabled")
	config.Database.Driver = v.GetString("database.driver")
	config.Database.Path = v.GetString("database.path")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")

	config.Log.Level = v.GetString("log.level")

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	config.Server.Username = v.GetString("server.username")
	config.Server.PasswordHash = v.GetString("server.password_hash")

	config.Schedule.Cron = v.GetString("schedule.cron")
	config.Schedule.RunOnStart = v.GetBool("schedule.run_on_start")
	config.Schedule.UIPort = v.GetInt("schedule.ui_port")

	return &config, nil
}

// SessionSite returns the site configuration of the session runner.
func (c *Config) SessionSite() session.Site {
	site := session.DefaultSite()
	site.BaseURL = c.Site.BaseURL
	site.RatePath = c.Site.RatePath
	site.NavigationTimeout = c.Site.NavigationTimeout
	site.PostLoginWait = session.Wait{MinSeconds: c.Site.PostLoginWaitMin, MaxSeconds: c.Site.PostLoginWaitMax}
	site.PreLoopWait = session.Wait{MinSeconds: c.Site.PreLoopWaitMin, MaxSeconds: c.Site.PreLoopWaitMax}
	return site
}

// PlaywrightConfig returns the browser launcher configuration.
func (c *Config) PlaywrightConfig() browser.PlaywrightConfig {
	return browser.PlaywrightConfig{
		Launch: browser.LaunchOptions{
			Headless: c.Browser.Headless,
			Args:     c.Browser.Args,
		},
		ActionTimeout: c.Browser.ActionTimeout,
		Install:       c.Browser.Install,
	}
}

// OrchestratorConfig returns the fan-out configuration.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		MaxConcurrent: c.Browser.MaxConcurrent,
		Context: browser.ContextOptions{
			ViewportWidth:  c.Browser.ViewportWidth,
			ViewportHeight: c.Browser.ViewportHeight,
			UserAgent:      c.Browser.UserAgent,
		},
	}
}

// RetryPolicy returns the retry policy of the login flow.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  c.Retry.BaseDelay,
		Multiplier: c.Retry.Multiplier,
	}
}

// ClickerConfig returns the click loop configuration.
func (c *Config) ClickerConfig() clicker.Config {
	cfg := clicker.DefaultConfig()
	cfg.OuterMin = c.ClickLoop.OuterMin
	cfg.OuterMax = c.ClickLoop.OuterMax
	cfg.Inner = c.ClickLoop.Inner
	cfg.DelayMin = c.ClickLoop.DelayMin
	cfg.DelayMax = c.ClickLoop.DelayMax
	cfg.SignalTimeout = c.ClickLoop.SignalTimeout
	return cfg
}

// RandomSource returns the source of click choices and waits. A configured
// seed fixes the sequence of draws; concurrent sessions still interleave.
func (c *Config) RandomSource() randutil.Source {
	if c.ClickLoop.Seed != 0 {
		return randutil.Seeded(c.ClickLoop.Seed, c.ClickLoop.Seed)
	}
	return randutil.New()
}

// CredentialOptions returns where credentials are loaded from.
func (c *Config) CredentialOptions() credential.Options {
	return credential.Options{
		Inline:       c.Credentials.Inline,
		Path:         c.Credentials.Path,
		Passphrase:   c.Credentials.Passphrase,
		CreateSample: c.Credentials.CreateSample,
	}
}

// StorageOptions returns the blob storage configuration.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Type:            c.Storage.Type,
		BaseDir:         c.Storage.BaseDir,
		Bucket:          c.Storage.S3Bucket,
		Region:          c.Storage.S3Region,
		Prefix:          c.Storage.S3Prefix,
		Endpoint:        c.Storage.S3Endpoint,
		AccessKeyID:     c.Storage.S3AccessKeyID,
		SecretAccessKey: c.Storage.S3SecretAccessKey,
		PresignExpiry:   c.Storage.S3PresignExpiry,
	}
}

// DatabaseOptions returns the run history database configuration.
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Driver:       c.Database.Driver,
		Path:         c.Database.Path,
		Host:         c.Database.Host,
		Port:         c.Database.Port,
		User:         c.Database.User,
		Password:     c.Database.Password,
		Database:     c.Database.Database,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
	}
}

// ServerOptions returns the HTTP server configuration.
func (c *Config) ServerOptions() server.Config {
	return server.Config{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		Username:     c.Server.Username,
		PasswordHash: c.Server.PasswordHash,
	}
}
