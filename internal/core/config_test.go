package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `# Test configuration
work_dir   = "/srv/agents"
log_dir    = "/tmp/sut-logs"
executable = "/usr/local/bin/testflinger-agent"
ledger_path = "/tmp/ledger.db"
process_pattern = "agent_main"

user {
  uid = 1001
  gid = 1002
}

heartbeat {
  url          = "https://status.example.com/ping"
  interval     = "10m"
  timeout      = "5s"
  grace_period = "1s"
}

log_rotation {
  max_bytes = 5000
  backups   = 4
}
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, configPath, config.ConfigFile)
	assert.Equal(t, "/srv/agents", config.WorkDir)
	assert.Equal(t, "/srv/agents/sut", config.ConfigDir, "config_dir follows work_dir")
	assert.Equal(t, "/tmp/sut-logs", config.LogDir)
	assert.Equal(t, "/usr/local/bin/testflinger-agent", config.Executable)
	assert.Equal(t, "/tmp/ledger.db", config.LedgerPath)
	assert.Equal(t, "agent_main", config.ProcessPattern)
	assert.Equal(t, UserConfig{UID: 1001, GID: 1002}, config.User)
	assert.Equal(t, HeartbeatConfig{
		URL:         "https://status.example.com/ping",
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Second,
		GracePeriod: time.Second,
	}, config.Heartbeat)
	assert.Equal(t, RotationConfig{MaxBytes: 5000, Backups: 4}, config.LogRotation)
}

func TestLoadConfig_EmptyFileKeepsDefaults(t *testing.T) {
	configPath := writeConfig(t, "")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	defaults := GetDefaultConfig()
	defaults.ConfigFile = configPath
	assert.Equal(t, defaults, config)
}

func TestLoadConfig_ExplicitConfigDirWins(t *testing.T) {
	configPath := writeConfig(t, `
work_dir   = "/srv/agents"
config_dir = "/etc/sut"
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/etc/sut", config.ConfigDir)
}

func TestLoadConfig_ZeroValuesAreKept(t *testing.T) {
	configPath := writeConfig(t, `
user {
  uid = 0
  gid = 0
}

log_rotation {
  backups = 0
}
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, UserConfig{UID: 0, GID: 0}, config.User)
	assert.Equal(t, 0, config.LogRotation.Backups)
	assert.Equal(t, int64(100_000_000), config.LogRotation.MaxBytes)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad duration",
			content: "heartbeat {\n  interval = \"often\"\n}\n",
			wantErr: "heartbeat.interval",
		},
		{
			name:    "zero interval",
			content: "heartbeat {\n  interval = \"0s\"\n}\n",
			wantErr: "heartbeat.interval must be positive",
		},
		{
			name:    "zero max_bytes",
			content: "log_rotation {\n  max_bytes = 0\n}\n",
			wantErr: "log_rotation.max_bytes must be positive",
		},
		{
			name:    "negative max_bytes",
			content: "log_rotation {\n  max_bytes = -1\n}\n",
			wantErr: "log_rotation.max_bytes must be positive",
		},
		{
			name:    "negative backups",
			content: "log_rotation {\n  backups = -1\n}\n",
			wantErr: "backups cannot be negative",
		},
		{
			name:    "bad pattern",
			content: "process_pattern = \"agent_(main\"\n",
			wantErr: "invalid process_pattern",
		},
		{
			name:    "unknown attribute",
			content: "colour = \"blue\"\n",
			wantErr: "failed to parse HCL config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigOrDefault_MissingFile(t *testing.T) {
	config, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	assert.Empty(t, config.ConfigFile)
}

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	assert.Equal(t, "/data/testflinger-agent/sut", config.ConfigDir)
	assert.Equal(t, "/var/log/sut-agent/init_agents", config.RootLogPath())
	assert.Equal(t, UserConfig{UID: 1000, GID: 1000}, config.User)
	assert.Equal(t, 360*time.Second, config.Heartbeat.Interval)
	assert.Equal(t, 2*time.Second, config.Heartbeat.Timeout)
	assert.Equal(t, 3*time.Second, config.Heartbeat.GracePeriod)
	assert.Equal(t, RotationConfig{MaxBytes: 100_000_000, Backups: 2}, config.LogRotation)
	assert.NoError(t, config.Validate(), "defaults must validate")
}

func TestProcessMatcher_AnchoredAtStart(t *testing.T) {
	re, err := GetDefaultConfig().ProcessMatcher()
	require.NoError(t, err)

	tests := []struct {
		name string
		want bool
	}{
		{"agent_main", true},
		{"testflinger-age", true},
		{"testflinger-agent", true},
		{"my-agent_main", false},
		{"python3", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, re.MatchString(tt.name), tt.name)
	}
}
