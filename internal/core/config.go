package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	// DefaultConfigFile is read when --config is not given. It may be absent.
	DefaultConfigFile = "/etc/sut-agent/config.hcl"

	// RootLogName is the file in the log dir that records the launch phase
	RootLogName = "init_agents"

	// ProcessTitle is the name the supervisor gives itself so that later
	// restart/stop runs can find it by name.
	ProcessTitle = "agent_main"
)

// Configuration represents the complete supervisor configuration
type Configuration struct {
	ConfigFile     string          // File the configuration was loaded from, empty for defaults
	WorkDir        string          // Working directory of every agent
	ConfigDir      string          // Directory of configuration units, one agent per file
	LogDir         string          // Directory for per-agent logs and the root log
	Executable     string          // Agent executable, invoked as "<executable> -c <unit path>"
	User           UserConfig      // Identity every agent runs as
	Heartbeat      HeartbeatConfig // Per-agent health probe
	LogRotation    RotationConfig  // Per-agent log file rotation
	ProcessPattern string          // Process names killed by restart/stop, anchored at the start
	LedgerPath     string          // SQLite launch ledger
}

// UserConfig is the unprivileged identity agents are demoted to
type UserConfig struct {
	UID int
	GID int
}

// HeartbeatConfig controls the per-agent health probe
type HeartbeatConfig struct {
	URL         string
	Interval    time.Duration
	Timeout     time.Duration
	GracePeriod time.Duration
}

// RotationConfig controls per-agent log file rotation
type RotationConfig struct {
	MaxBytes int64
	Backups  int
}

// HCL parsing structs

type hclConfig struct {
	WorkDir        string        `hcl:"work_dir,optional"`
	ConfigDir      string        `hcl:"config_dir,optional"`
	LogDir         string        `hcl:"log_dir,optional"`
	Executable     string        `hcl:"executable,optional"`
	ProcessPattern string        `hcl:"process_pattern,optional"`
	LedgerPath     string        `hcl:"ledger_path,optional"`
	User           *hclUser      `hcl:"user,block"`
	Heartbeat      *hclHeartbeat `hcl:"heartbeat,block"`
	LogRotation    *hclRotation  `hcl:"log_rotation,block"`
}

type hclUser struct {
	UID *int `hcl:"uid,optional"`
	GID *int `hcl:"gid,optional"`
}

type hclHeartbeat struct {
	URL         string `hcl:"url,optional"`
	Interval    string `hcl:"interval,optional"`
	Timeout     string `hcl:"timeout,optional"`
	GracePeriod string `hcl:"grace_period,optional"`
}

type hclRotation struct {
	MaxBytes *int64 `hcl:"max_bytes,optional"`
	Backups  *int   `hcl:"backups,optional"`
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	workDir := filepath.Join("/", "data", "testflinger-agent")
	return &Configuration{
		WorkDir:    workDir,
		ConfigDir:  filepath.Join(workDir, "sut"),
		LogDir:     filepath.Join("/", "var", "log", "sut-agent"),
		Executable: "testflinger-agent",
		User: UserConfig{
			UID: 1000,
			GID: 1000,
		},
		Heartbeat: HeartbeatConfig{
			URL:         "https://certification.canonical.com/submissions",
			Interval:    360 * time.Second,
			Timeout:     2 * time.Second,
			GracePeriod: 3 * time.Second,
		},
		LogRotation: RotationConfig{
			MaxBytes: 100_000_000,
			Backups:  2,
		},
		// ps truncates names to 15 characters
		ProcessPattern: "agent_main|testflinger-age",
		LedgerPath:     filepath.Join("/", "var", "lib", "sut-agent", "ledger.db"),
	}
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct.
// Settings that are left out keep their defaults.
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.ConfigFile = filename

	if hclCfg.WorkDir != "" {
		cfg.WorkDir = hclCfg.WorkDir
		// The unit directory follows the work dir unless set explicitly
		cfg.ConfigDir = filepath.Join(hclCfg.WorkDir, "sut")
	}
	if hclCfg.ConfigDir != "" {
		cfg.ConfigDir = hclCfg.ConfigDir
	}
	if hclCfg.LogDir != "" {
		cfg.LogDir = hclCfg.LogDir
	}
	if hclCfg.Executable != "" {
		cfg.Executable = hclCfg.Executable
	}
	if hclCfg.ProcessPattern != "" {
		cfg.ProcessPattern = hclCfg.ProcessPattern
	}
	if hclCfg.LedgerPath != "" {
		cfg.LedgerPath = hclCfg.LedgerPath
	}

	if hclCfg.User != nil {
		if hclCfg.User.UID != nil {
			cfg.User.UID = *hclCfg.User.UID
		}
		if hclCfg.User.GID != nil {
			cfg.User.GID = *hclCfg.User.GID
		}
	}

	if hb := hclCfg.Heartbeat; hb != nil {
		if hb.URL != "" {
			cfg.Heartbeat.URL = hb.URL
		}
		if err := parseDuration("heartbeat.interval", hb.Interval, &cfg.Heartbeat.Interval); err != nil {
			return nil, err
		}
		if err := parseDuration("heartbeat.timeout", hb.Timeout, &cfg.Heartbeat.Timeout); err != nil {
			return nil, err
		}
		if err := parseDuration("heartbeat.grace_period", hb.GracePeriod, &cfg.Heartbeat.GracePeriod); err != nil {
			return nil, err
		}
	}

	if rot := hclCfg.LogRotation; rot != nil {
		if rot.MaxBytes != nil {
			cfg.LogRotation.MaxBytes = *rot.MaxBytes
		}
		if rot.Backups != nil {
			cfg.LogRotation.Backups = *rot.Backups
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault loads filename, falling back to defaults when the file
// does not exist. Any other error is returned.
func LoadConfigOrDefault(filename string) (*Configuration, error) {
	if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
		return GetDefaultConfig(), nil
	}
	return LoadConfig(filename)
}

func parseDuration(key, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = d
	return nil
}

// Validate checks values a config file could get wrong
func (c *Configuration) Validate() error {
	var errs []error
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.interval must be positive"))
	}
	if c.Heartbeat.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.timeout must be positive"))
	}
	if c.Heartbeat.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("heartbeat.grace_period cannot be negative"))
	}
	if c.LogRotation.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("log_rotation.max_bytes must be positive"))
	}
	if c.LogRotation.Backups < 0 {
		errs = append(errs, fmt.Errorf("log_rotation.backups cannot be negative"))
	}
	if c.User.UID < 0 || c.User.GID < 0 {
		errs = append(errs, fmt.Errorf("user uid/gid cannot be negative"))
	}
	if _, err := c.ProcessMatcher(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProcessMatcher compiles ProcessPattern anchored at the start of the name
func (c *Configuration) ProcessMatcher() (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + c.ProcessPattern + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid process_pattern %q: %w", c.ProcessPattern, err)
	}
	return re, nil
}

// RootLogPath returns the path of the launch-phase log
func (c *Configuration) RootLogPath() string {
	return filepath.Join(c.LogDir, RootLogName)
}
