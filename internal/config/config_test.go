package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

func noEnv(string) string { return "" }

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "archivist.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
project: lowapk_v2
archivist: alice
client_version: "1.1"
tracker:
  preset: test
  request_timeout: 10s
worker:
  idle_interval: 5s
  done_status: ARCHIVED
  max_tasks: 3
`)

	config, err := Load(configPath, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "lowapk_v2", config.Project)
	assert.Equal(t, "alice", config.Archivist)
	assert.Equal(t, "1.1", config.ClientVersion)
	assert.Equal(t, NodesTest, config.Tracker.Preset)
	assert.Equal(t, 10*time.Second, config.Tracker.RequestTimeout)
	assert.Equal(t, 5*time.Second, config.Worker.IdleInterval)
	assert.Equal(t, "ARCHIVED", config.Worker.DoneStatus)
	assert.Equal(t, DefaultFailStatus, config.Worker.FailStatus)
	assert.Equal(t, 3, config.Worker.MaxTasks)
	assert.Equal(t, tracker.TestNodes, config.Nodes())
	assert.False(t, config.JournalEnabled())
}

func TestLoad_TOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "archivist.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`version = "1.0"
project = "lowapk_v2"
archivist = "alice"
client_version = "1.1"

[tracker]
base_url = "http://localhost:8080/"
request_timeout = "10s"

[worker]
idle_interval = "5s"
max_tasks = 3

[journal]
redis_url = "redis://localhost:6379/0"
`), 0644))

	config, err := Load(configPath, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "lowapk_v2", config.Project)
	assert.Equal(t, "http://localhost:8080/", config.Tracker.BaseURL)
	assert.Equal(t, 10*time.Second, config.Tracker.RequestTimeout)
	assert.Equal(t, 5*time.Second, config.Worker.IdleInterval)
	assert.Equal(t, 3, config.Worker.MaxTasks)
	assert.True(t, config.JournalEnabled())
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "archivist.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("project = [unclosed"), 0644))

	_, err := Load(configPath, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse TOML")
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/archivist.yml", noEnv)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
project:
  - this is invalid
    yaml syntax
`)

	config, err := Load(configPath, noEnv)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_NoFile_EnvOnly(t *testing.T) {
	config, err := Load("", envOf(map[string]string{
		EnvProject:       "demo",
		EnvArchivist:     "bob",
		EnvClientVersion: "2.0",
		EnvTrackerURL:    "http://localhost:9000/",
		EnvRedisURL:      "redis://localhost:6379/0",
	}))
	require.NoError(t, err)
	assert.Equal(t, "demo", config.Project)
	assert.Equal(t, "bob", config.Archivist)
	assert.Equal(t, "2.0", config.ClientVersion)
	assert.Equal(t, []string{"http://localhost:9000/"}, config.Nodes())
	assert.True(t, config.JournalEnabled())
	assert.Equal(t, "redis://localhost:6379/0", config.Journal.RedisURL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
project: from_file
archivist: alice
client_version: "1.0"
`)

	config, err := Load(configPath, envOf(map[string]string{EnvProject: "from_env"}))
	require.NoError(t, err)
	assert.Equal(t, "from_env", config.Project)
	assert.Equal(t, "alice", config.Archivist)
}

func TestValidate_Defaults(t *testing.T) {
	config := &ArchivistConfig{Version: "1.0", Project: "p", ClientVersion: "1.0"}
	require.NoError(t, config.Validate())

	assert.Equal(t, NodesProduction, config.Tracker.Preset)
	assert.Equal(t, tracker.DefaultRequestTimeout, config.Tracker.RequestTimeout)
	assert.Equal(t, DefaultIdleInterval, config.Worker.IdleInterval)
	assert.Equal(t, DefaultDoneStatus, config.Worker.DoneStatus)
	assert.Equal(t, DefaultFailStatus, config.Worker.FailStatus)
	assert.Equal(t, DefaultRequeueStatus, config.Worker.RequeueStatus)
	assert.Equal(t, tracker.ProductionNodes, config.Nodes())

	assert.True(t, strings.HasPrefix(config.Archivist, "archivist-"))
	assert.True(t, tracker.IsSafe(config.Archivist))
}

func TestGenerateArchivistName_Unique(t *testing.T) {
	a := GenerateArchivistName()
	b := GenerateArchivistName()
	assert.NotEqual(t, a, b)
	require.NoError(t, tracker.ValidateIdentifier("archivist", a))
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	config := &ArchivistConfig{Version: "2.0", Project: "p", ClientVersion: "1.0"}
	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestValidate_Identifiers(t *testing.T) {
	tests := []struct {
		name      string
		project   string
		archivist string
	}{
		{"missing project", "", "alice"},
		{"unsafe project", "a/b", "alice"},
		{"unsafe archivist", "p", "alice bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &ArchivistConfig{Version: "1.0", Project: tt.project, Archivist: tt.archivist, ClientVersion: "1.0"}
			err := config.Validate()
			var verr *tracker.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidate_MissingClientVersion(t *testing.T) {
	config := &ArchivistConfig{Version: "1.0", Project: "p"}
	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "client_version is required")
}

func TestValidate_Tracker(t *testing.T) {
	config := &ArchivistConfig{Version: "1.0", Project: "p", ClientVersion: "1.0"}
	config.Tracker.Preset = "staging"
	assert.ErrorContains(t, config.Validate(), "invalid tracker.preset")

	config.Tracker.Preset = ""
	config.Tracker.Nodes = []string{"https://a.example/", "ftp://b.example/"}
	assert.ErrorContains(t, config.Validate(), "tracker.nodes[1]")

	config.Tracker.Nodes = []string{"https://a.example/"}
	require.NoError(t, config.Validate())
	assert.Equal(t, []string{"https://a.example/"}, config.Nodes())
}

func TestValidate_Worker(t *testing.T) {
	base := func() *ArchivistConfig {
		return &ArchivistConfig{Version: "1.0", Project: "p", ClientVersion: "1.0"}
	}

	c := base()
	c.Worker.MaxTasks = -1
	assert.ErrorContains(t, c.Validate(), "worker.max_tasks")

	c = base()
	c.Worker.IdleInterval = -time.Second
	assert.ErrorContains(t, c.Validate(), "worker.idle_interval")

	c = base()
	c.Worker.HealthPort = 70000
	assert.ErrorContains(t, c.Validate(), "worker.health_port")
}

func TestValidate_JournalWithoutURL(t *testing.T) {
	config := &ArchivistConfig{Version: "1.0", Project: "p", ClientVersion: "1.0", Journal: &JournalConfig{}}
	assert.ErrorContains(t, config.Validate(), "journal.redis_url is required")
}

func TestTrackerOptions(t *testing.T) {
	config := &ArchivistConfig{Version: "1.0", Project: "p", Archivist: "a", ClientVersion: "1.0"}
	require.NoError(t, config.Validate())

	cfg, opts := config.TrackerOptions()
	assert.Equal(t, "p", cfg.ProjectID)
	assert.Equal(t, "a", cfg.Archivist)
	assert.Equal(t, "1.0", cfg.ClientVersion)
	assert.Equal(t, tracker.ProductionNodes, cfg.Nodes)
	assert.Empty(t, opts)

	config.Tracker.BaseURL = "http://localhost:8080/"
	cfg, opts = config.TrackerOptions()
	assert.Equal(t, []string{"http://localhost:8080/"}, cfg.Nodes)
	assert.Len(t, opts, 1)
}

func TestValidate_JournalNeedsStableArchivist(t *testing.T) {
	config := &ArchivistConfig{
		Version:       "1.0",
		Project:       "p",
		ClientVersion: "1.0",
		Journal:       &JournalConfig{RedisURL: "redis://localhost:6379"},
	}
	assert.ErrorContains(t, config.Validate(), "archivist is required when journal is configured")

	config.Archivist = "alice"
	assert.NoError(t, config.Validate())
}
