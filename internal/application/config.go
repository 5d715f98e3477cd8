package application

import (
	"errors"
	"fmt"
	"time"

	"launchsync/internal/bitable"
	"launchsync/internal/notify"
	"launchsync/internal/scrapers/nextspaceflight"
	"launchsync/internal/syncer"
	"launchsync/lib/configutil"
	configlibsql "launchsync/lib/configutil/libsql"
)

type FetchConfig struct {
	BaseURL          string  `json:"base_url"`
	UserAgent        string  `json:"user_agent"`
	MaxPages         int     `json:"max_pages"`
	PageDelaySeconds float64 `json:"page_delay_seconds"`
	TimeoutSeconds   float64 `json:"timeout_seconds"`
}

func (c FetchConfig) ClientOptions() nextspaceflight.ClientOptions {
	return nextspaceflight.ClientOptions{
		BaseURL:   c.BaseURL,
		UserAgent: c.UserAgent,
		MaxPages:  c.MaxPages,
		PageDelay: seconds(c.PageDelaySeconds),
		Timeout:   seconds(c.TimeoutSeconds),
	}
}

type BitableConfig struct {
	BaseURL   string `json:"base_url"`
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
	AppToken  string `json:"app_token"`
	TableID   string `json:"table_id"`
	ViewID    string `json:"view_id"`
	PageSize  int    `json:"page_size"`
}

func (c BitableConfig) Validate() error {
	var missing []error
	if c.AppID == "" {
		missing = append(missing, fmt.Errorf("bitable app_id (FEISHU_APP_ID) is not set"))
	}
	if c.AppSecret == "" {
		missing = append(missing, fmt.Errorf("bitable app_secret (FEISHU_APP_SECRET) is not set"))
	}
	if c.AppToken == "" {
		missing = append(missing, fmt.Errorf("bitable app_token (BITABLE_APP_TOKEN) is not set"))
	}
	if c.TableID == "" {
		missing = append(missing, fmt.Errorf("bitable table_id (BITABLE_TABLE_ID) is not set"))
	}
	return errors.Join(missing...)
}

func (c BitableConfig) Credentials() bitable.Credentials {
	return bitable.Credentials{AppID: c.AppID, AppSecret: c.AppSecret}
}

func (c BitableConfig) Table() bitable.Table {
	return bitable.Table{AppToken: c.AppToken, TableID: c.TableID, ViewID: c.ViewID}
}

const defaultDelaySeconds = 0.2

type ExecuteConfig struct {
	// DelaySeconds is the pause between writes, nil means the default and 0
	// disables pacing.
	DelaySeconds  *float64 `json:"delay_seconds"`
	PreWriteCheck bool     `json:"pre_write_check"`
}

func (c ExecuteConfig) ExecutorOptions() syncer.ExecutorOptions {
	delay := defaultDelaySeconds
	if c.DelaySeconds != nil {
		delay = *c.DelaySeconds
	}
	return syncer.ExecutorOptions{
		Delay:         seconds(delay),
		PreWriteCheck: c.PreWriteCheck,
	}
}

type ScheduleConfig struct {
	// Mode is either "daily" or "weekly".
	Mode string `json:"mode"`
	// Weekday counts from Monday = 0 to Sunday = 6.
	Weekday  int  `json:"weekday"`
	Hour     int  `json:"hour"`
	Minute   int  `json:"minute"`
	AllPages bool `json:"all_pages"`
}

type NotifyConfig struct {
	Smtp notify.SmtpConfig `json:"smtp"`
	To   []string          `json:"to"`
}

type Config struct {
	// TimeZone is the IANA zone launch times are normalized into and
	// schedules are evaluated in.
	TimeZone string `json:"time_zone"`
	DataDir  string `json:"data_dir"`
	LogFile  string `json:"log_file"`
	// DumpHttp, if set, is a directory every http exchange is written to.
	DumpHttp string              `json:"dump_http"`
	Fetch    FetchConfig         `json:"fetch"`
	Bitable  BitableConfig       `json:"bitable"`
	Execute  ExecuteConfig       `json:"execute"`
	Schedule ScheduleConfig      `json:"schedule"`
	Archive  configlibsql.Struct `json:"archive"`
	Notify   NotifyConfig        `json:"notify"`
}

func DefaultConfig() Config {
	return Config{
		TimeZone: "Asia/Shanghai",
		DataDir:  "data",
		Fetch: FetchConfig{
			BaseURL:          nextspaceflight.DefaultBaseURL,
			UserAgent:        nextspaceflight.DefaultUserAgent,
			MaxPages:         nextspaceflight.DefaultMaxPages,
			PageDelaySeconds: nextspaceflight.DefaultPageDelay.Seconds(),
			TimeoutSeconds:   60,
		},
		Bitable: BitableConfig{
			BaseURL:  bitable.DefaultBaseURL,
			PageSize: bitable.MaxPageSize,
		},
		Execute: ExecuteConfig{
			DelaySeconds: floatPtr(defaultDelaySeconds),
		},
		Schedule: ScheduleConfig{
			Mode: "weekly",
			Hour: 3,
		},
		Archive: configlibsql.Struct{
			File: "data/launchsync.db",
		},
	}
}

// LoadConfig reads `path` (and its .local override) if it exists, fills in
// defaults for everything left unset and applies .env files and environment
// overrides on top.
func LoadConfig(path string) (Config, error) {
	config, err := configutil.Load(path, DefaultConfig())
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	config.ApplyEnv()
	return config, nil
}

// ApplyEnv overwrites credentials and the time zone with the environment.
func (c *Config) ApplyEnv() {
	configutil.Env(&c.Bitable.AppID, "FEISHU_APP_ID")
	configutil.Env(&c.Bitable.AppSecret, "FEISHU_APP_SECRET")
	configutil.Env(&c.Bitable.AppToken, "BITABLE_APP_TOKEN")
	configutil.Env(&c.Bitable.TableID, "BITABLE_TABLE_ID")
	configutil.Env(&c.Bitable.ViewID, "BITABLE_VIEW_ID")
	configutil.Env(&c.TimeZone, "TZ")
}

func floatPtr(v float64) *float64 {
	return &v
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
