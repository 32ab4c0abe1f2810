package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFilename = "send-garp.yaml"

	modeEthxmit = "ethxmit"
	modeNative  = "native"

	envSSHPassword = "SEND_GARP_SSH_PASSWORD"
)

type (
	// RunConfig is everything a run needs, built once at startup.
	RunConfig struct {
		Selector        Selector
		DeviceCLI       string
		NamespacePrefix string
		SegmentLabel    string
		Sudo            bool
		Mode            string
		Ethxmit         string
		Count           int
		DryRun          bool
		RouterState     string
		InterfaceState  string
		SSH             SSHConfig
	}

	SSHConfig struct {
		Host         string
		Port         int
		User         string
		Password     string
		IdentityFile string
		KnownHosts   string
		DialTimeout  time.Duration
	}

	// SetupConfig is the on-disk settings file.
	SetupConfig struct {
		DeviceCLI       string   `yaml:"deviceCli,omitempty"`
		NamespacePrefix *string  `yaml:"namespacePrefix,omitempty"`
		SegmentLabel    *string  `yaml:"segmentLabel,omitempty"`
		Sudo            *bool    `yaml:"sudo,omitempty"`
		Mode            string   `yaml:"mode,omitempty"`
		Ethxmit         string   `yaml:"ethxmit,omitempty"`
		Count           int      `yaml:"count,omitempty"`
		LogLevel        string   `yaml:"logLevel,omitempty"`
		LogJSON         bool     `yaml:"logJson,omitempty"`
		SSH             SetupSSH `yaml:"ssh,omitempty"`
	}

	SetupSSH struct {
		Host         string        `yaml:"host,omitempty"`
		Port         int           `yaml:"port,omitempty"`
		User         string        `yaml:"user,omitempty"`
		Password     string        `yaml:"password,omitempty"`
		IdentityFile string        `yaml:"identityFile,omitempty"`
		KnownHosts   string        `yaml:"knownHosts,omitempty"`
		DialTimeout  time.Duration `yaml:"dialTimeout,omitempty"`
	}
)

func defaultConfig() *RunConfig {
	return &RunConfig{
		DeviceCLI:       "FastCli",
		NamespacePrefix: "ns-",
		SegmentLabel:    "vlan",
		Sudo:            true,
		Mode:            modeEthxmit,
		Ethxmit:         "ethxmit",
		Count:           1,
		SSH: SSHConfig{
			Port:        22,
			DialTimeout: 10 * time.Second,
		},
	}
}

// readConfig loads the settings file. An empty path means the default file
// beside the executable, which may be absent.
func readConfig(path string) (*SetupConfig, error) {
	explicit := path != ""
	if !explicit {
		exePath, err := os.Executable()
		if err != nil {
			return &SetupConfig{}, nil
		}
		path = filepath.Join(filepath.Dir(exePath), ConfigFilename)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &SetupConfig{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var sc SetupConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &sc, nil
}

// apply layers the settings file over cfg.
func (sc *SetupConfig) apply(cfg *RunConfig) {
	if sc.DeviceCLI != "" {
		cfg.DeviceCLI = sc.DeviceCLI
	}
	if sc.NamespacePrefix != nil {
		cfg.NamespacePrefix = *sc.NamespacePrefix
	}
	if sc.SegmentLabel != nil {
		cfg.SegmentLabel = *sc.SegmentLabel
	}
	if sc.Sudo != nil {
		cfg.Sudo = *sc.Sudo
	}
	if sc.Mode != "" {
		cfg.Mode = sc.Mode
	}
	if sc.Ethxmit != "" {
		cfg.Ethxmit = sc.Ethxmit
	}
	if sc.Count != 0 {
		cfg.Count = sc.Count
	}
	if sc.SSH.DialTimeout != 0 {
		cfg.SSH.DialTimeout = sc.SSH.DialTimeout
	}
	if sc.SSH.Host != "" {
		cfg.SSH.Host = sc.SSH.Host
	}
	if sc.SSH.Port != 0 {
		cfg.SSH.Port = sc.SSH.Port
	}
	if sc.SSH.User != "" {
		cfg.SSH.User = sc.SSH.User
	}
	if sc.SSH.Password != "" {
		cfg.SSH.Password = sc.SSH.Password
	}
	if sc.SSH.IdentityFile != "" {
		cfg.SSH.IdentityFile = sc.SSH.IdentityFile
	}
	if sc.SSH.KnownHosts != "" {
		cfg.SSH.KnownHosts = sc.SSH.KnownHosts
	}
}

func applyEnv(cfg *RunConfig) {
	if v, ok := getEnvIfExists(envSSHPassword); ok {
		cfg.SSH.Password = v
	}
}

func getEnvIfExists(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (cfg *RunConfig) validate() error {
	switch cfg.Mode {
	case modeEthxmit, modeNative:
	default:
		return fmt.Errorf("%w: unknown mode %q (want %s or %s)", ErrUsage, cfg.Mode, modeEthxmit, modeNative)
	}
	if cfg.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1, got %d", ErrUsage, cfg.Count)
	}
	if (cfg.RouterState == "") != (cfg.InterfaceState == "") {
		return fmt.Errorf("%w: --router-state and --interface-state must be given together", ErrUsage)
	}
	if cfg.SSH.Host != "" {
		if cfg.SSH.User == "" {
			return fmt.Errorf("%w: SSH to %s requires a user", ErrUsage, cfg.SSH.Host)
		}
		if cfg.Mode == modeNative {
			return fmt.Errorf("%w: native mode sends from this host and cannot be combined with --host", ErrUsage)
		}
	}
	return nil
}
