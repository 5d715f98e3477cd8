package application

import (
	"go/format"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"FEISHU_APP_ID", "FEISHU_APP_SECRET", "BITABLE_APP_TOKEN",
		"BITABLE_TABLE_ID", "BITABLE_VIEW_ID", "TZ",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), config)
	require.Error(t, config.Bitable.Validate())
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("FEISHU_APP_ID", "cli_env")
	t.Setenv("BITABLE_TABLE_ID", "tblEnv")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	err := os.WriteFile(path, []byte(`{
		// secrets live in config.local.json5
		time_zone: "UTC",
		fetch: { max_pages: 3 },
		bitable: { app_id: "cli_file", app_token: "bascnFile" },
		schedule: { mode: "daily", hour: 5 },
	}`), 0644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		bitable: { app_secret: "secret" },
	}`), 0644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, ".env"), []byte("BITABLE_VIEW_ID=vewDotenv\nBITABLE_TABLE_ID=tblDotenv\n"), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "UTC", config.TimeZone)
	require.Equal(t, "data", config.DataDir)
	require.Equal(t, 3, config.Fetch.MaxPages)
	require.Equal(t, DefaultConfig().Fetch.BaseURL, config.Fetch.BaseURL)
	require.Equal(t, "daily", config.Schedule.Mode)
	require.Equal(t, 5, config.Schedule.Hour)

	require.Equal(t, "cli_env", config.Bitable.AppID)
	require.Equal(t, "secret", config.Bitable.AppSecret)
	require.Equal(t, "bascnFile", config.Bitable.AppToken)
	require.Equal(t, "tblEnv", config.Bitable.TableID)
	require.Equal(t, "vewDotenv", config.Bitable.ViewID)
	require.NoError(t, config.Bitable.Validate())

	options := config.Fetch.ClientOptions()
	require.Equal(t, 3, options.MaxPages)
	require.Equal(t, "1.5s", options.PageDelay.String())
	require.Equal(t, "200ms", config.Execute.ExecutorOptions().Delay.String())
}

func TestLoadConfigInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{ time_zone: `), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigExecuteDelay(t *testing.T) {
	clearEnv(t)

	testCases := []struct {
		name     string
		contents string
		expected string
	}{
		{name: "unset", contents: `{ execute: { pre_write_check: true } }`, expected: "200ms"},
		{name: "explicit zero", contents: `{ execute: { delay_seconds: 0 } }`, expected: "0s"},
		{name: "explicit value", contents: `{ execute: { delay_seconds: 1.5 } }`, expected: "1.5s"},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json5")
			require.NoError(t, os.WriteFile(path, []byte(test.contents), 0644))

			config, err := LoadConfig(path)
			require.NoError(t, err)
			require.Equal(t, test.expected, config.Execute.ExecutorOptions().Delay.String())
		})
	}
}

func TestConfigSourceFormatted(t *testing.T) {
	contents, err := os.ReadFile("config.go")
	require.NoError(t, err)
	formatted, err := format.Source(contents)
	require.NoError(t, err)
	require.Equal(t, string(formatted), string(contents))
}
