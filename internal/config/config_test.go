package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidate_EmptyConfig(t *testing.T) {
	assert.NoError(t, Validate(&Config{}))
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		StoreBackend:      BackendJSONBin,
		JSONBinURL:        "https://api.jsonbin.io/v3/b",
		RequestsPerSecond: 2,
		PollInterval:      5 * time.Second,
		HorizonDays:       90,
		ShareBaseURL:      "https://overlap.example.com/",
		GmailSender:       "events@example.com",
		RecurringMarks: []RecurringMark{
			{RRule: "FREQ=WEEKLY;BYDAY=SA,SU", Action: "fill"},
		},
	}
	assert.NoError(t, Validate(cfg))
}

func TestValidate_UnknownBackend(t *testing.T) {
	err := Validate(&Config{StoreBackend: "mongo"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidate_InvalidRRule(t *testing.T) {
	cfg := &Config{
		RecurringMarks: []RecurringMark{
			{RRule: "FREQ=WEEKLY;BYDAY=MO"},
			{RRule: "INVALID_RRULE"},
		},
	}

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rrule in recurringMarks[1]")
}

func TestValidate_EmptyRRule(t *testing.T) {
	err := Validate(&Config{RecurringMarks: []RecurringMark{{Action: "fill"}}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidate_BadAction(t *testing.T) {
	err := Validate(&Config{RecurringMarks: []RecurringMark{{RRule: "FREQ=DAILY", Action: "toggle"}}})
	assert.Error(t, err)
}

func TestValidate_HorizonBounds(t *testing.T) {
	assert.Error(t, Validate(&Config{HorizonDays: 1000}))
	assert.Error(t, Validate(&Config{HorizonDays: -1}))
}

func TestLoadFromPath_ValidConfig(t *testing.T) {
	path := writeFile(t, "overlap_config.yaml", `
storeBackend: "local"
pollInterval: 5s
writeCoolDown: 250ms
horizonDays: 60
localDBPath: "/tmp/overlap.db"
gmailSender: "events@example.com"
recurringMarks:
  - rrule: "FREQ=WEEKLY;BYDAY=SU"
    action: clear
  - rrule: "FREQ=MONTHLY;BYDAY=1SA"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteCoolDown)
	assert.Equal(t, 60, cfg.HorizonDays)
	assert.Equal(t, "/tmp/overlap.db", cfg.LocalDBPath)

	require.Len(t, cfg.RecurringMarks, 2)
	assert.Equal(t, "clear", cfg.RecurringMarks[0].Action)
	assert.Equal(t, "fill", cfg.RecurringMarks[1].Action, "action defaults to fill")

	// Unset keys take defaults
	assert.Equal(t, DefaultJSONBinURL, cfg.JSONBinURL)
	assert.Equal(t, DefaultListen, cfg.Listen)
}

func TestLoadFromPath_MinimalConfig(t *testing.T) {
	path := writeFile(t, "minimal.yaml", "gmailSender: \"a@example.com\"\n")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, BackendAuto, cfg.StoreBackend)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultWriteCoolDown, cfg.WriteCoolDown)
	assert.Equal(t, DefaultHorizonDays, cfg.HorizonDays)
	assert.Empty(t, cfg.RecurringMarks)
}

func TestLoadFromPath_InvalidRRule(t *testing.T) {
	path := writeFile(t, "invalid_rrule.yaml", `
recurringMarks:
  - rrule: "INVALID_RRULE_SYNTAX"
`)

	_, err := LoadFromPath(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rrule")
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	path := writeFile(t, "invalid_yaml.yaml", `
storeBackend: "local"
  invalid indentation
horizonDays: 10
`)

	_, err := LoadFromPath(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFromPath_FileNotFound(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadWithEnv_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("JSONBIN_TOKEN", "")

	cfg, err := LoadWithEnv("nothing-here")
	require.NoError(t, err)
	assert.Equal(t, BackendAuto, cfg.StoreBackend)
	assert.Equal(t, BackendLocal, cfg.ResolveBackend())
}

func TestLoadWithEnv_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("JSONBIN_TOKEN", "")
	t.Setenv("API_KEY", "")
	// .env never overrides variables that are already set
	os.Unsetenv("API_KEY")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("API_KEY=from-dotenv\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overlap_config.test.yaml"), []byte("horizonDays: 30\n"), 0644))

	cfg, err := LoadWithEnv("test")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.HorizonDays)
	assert.Equal(t, "from-dotenv", cfg.Secrets.APIKey)
}

func TestResolveBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		token   string
		want    string
	}{
		{"auto with token", BackendAuto, "tok", BackendJSONBin},
		{"auto without token", BackendAuto, "", BackendLocal},
		{"explicit postgres", BackendPostgres, "", BackendPostgres},
		{"explicit local ignores token", BackendLocal, "tok", BackendLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{StoreBackend: tt.backend, Secrets: Secrets{JSONBinToken: tt.token}}
			assert.Equal(t, tt.want, cfg.ResolveBackend())
		})
	}
}

func TestLoadOAuthClientFromPath(t *testing.T) {
	path := writeFile(t, "oauthClient.json", `{
  "installed": {
    "client_id": "id.apps.googleusercontent.com",
    "project_id": "overlap",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
    "client_secret": "shh",
    "redirect_uris": ["http://localhost"]
  }
}`)

	cfg, err := LoadOAuthClientFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "overlap", cfg.Installed.ProjectID)
}

func TestLoadOAuthClientFromPath_Invalid(t *testing.T) {
	path := writeFile(t, "oauthClient.json", `{"installed": {"client_id": "x"}}`)

	_, err := LoadOAuthClientFromPath(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadOAuthClientWithEnv_Missing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	_, err := LoadOAuthClientWithEnv("")
	assert.ErrorIs(t, err, ErrNoOAuthClient)
}
