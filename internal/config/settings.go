package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Configuration keys
const (
	KeyOntoDefault       = "arc.land.onto.default"
	KeyPhabricatorURI    = "phabricator.uri"
	KeyConduitURI        = "conduit_uri"
	KeySubmitQueueURI    = "uber.land.submitqueue.uri"
	KeySubmitQueueShadow = "uber.land.submitqueue.shadow"
	KeySubmitQueueRegex  = "uber.land.submitqueue.regex"
	KeyPrePushEvent      = "uber.land.submitqueue.events.prepush"
	KeyPreventUnaccepted = "uber.land.prevent-unaccepted-changes"
	KeyBuildablesCheck   = "uber.land.buildables-check"
	KeyRunUnit           = "uber.land.run.unit"
	KeyUnitCommand       = "uber.land.unit.command"
	KeyCascadeHalt       = "cascade.halt"
	KeyCachePath         = "arcstack.cache.path"
	KeyCacheDisabled     = "arcstack.cache.disabled"
	KeyTrace             = "arcstack.trace"
)

const (
	keyDelimiter = "::"
	envPrefix    = "ARCSTACK"

	// DefaultOnto is the target branch when nothing else names one
	DefaultOnto = "master"
	// DefaultRemote is the remote when the target does not track one
	DefaultRemote = "origin"
)

// Settings is the resolved configuration of one invocation
type Settings struct {
	OntoDefault       string
	ConduitURI        string
	ConduitToken      string
	SubmitQueueURI    string
	SubmitQueueShadow bool
	SubmitQueueRegex  string
	PrePushEvent      bool
	PreventUnaccepted bool
	BuildablesCheck   bool
	RunUnit           bool
	UnitCommand       string
	CascadeHalt       bool
	CachePath         string
	CacheDisabled     bool
	Trace             bool
}

// LoadOptions locates the configuration sources. Empty fields are skipped,
// except HomeDir which defaults to the user's home directory.
type LoadOptions struct {
	RepoRoot string
	GitDir   string
	HomeDir  string
}

// Load reads every configuration layer
func Load(opts LoadOptions) (*Settings, error) {
	v, err := newViper(opts)
	if err != nil {
		return nil, err
	}
	settings := fromViper(v)

	token, err := ConduitToken(filepath.Join(opts.HomeDir, ".arcrc"), settings.ConduitURI)
	if err != nil {
		return nil, err
	}
	if env := os.Getenv(envPrefix + "_CONDUIT_TOKEN"); env != "" {
		token = env
	}
	settings.ConduitToken = token
	return settings, nil
}

func newViper(opts LoadOptions) (*viper.Viper, error) {
	if opts.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		opts.HomeDir = home
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetDefault(KeyOntoDefault, "")
	v.SetDefault(KeyCachePath, filepath.Join(opts.HomeDir, ".arcstack", "cache.db"))
	v.SetDefault(KeyUnitCommand, "")

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(opts.HomeDir, ".arcstack"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read user config: %w", err)
		}
	}

	if opts.RepoRoot != "" {
		if err := mergeJSONFile(v, filepath.Join(opts.RepoRoot, ".arcconfig")); err != nil {
			return nil, err
		}
	}
	if opts.GitDir != "" {
		if err := mergeJSONFile(v, filepath.Join(opts.GitDir, "arclocalconfig")); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_", keyDelimiter, "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyTrace, envPrefix+"_TRACE"); err != nil {
		return nil, fmt.Errorf("bind trace env: %w", err)
	}
	return v, nil
}

// mergeJSONFile merges a JSON config file; a missing file is not an error
func mergeJSONFile(v *viper.Viper, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	v.SetConfigType("json")
	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func fromViper(v *viper.Viper) *Settings {
	conduitURI := v.GetString(KeyConduitURI)
	if conduitURI == "" {
		conduitURI = v.GetString(KeyPhabricatorURI)
	}
	return &Settings{
		OntoDefault:       v.GetString(KeyOntoDefault),
		ConduitURI:        conduitURI,
		SubmitQueueURI:    v.GetString(KeySubmitQueueURI),
		SubmitQueueShadow: v.GetBool(KeySubmitQueueShadow),
		SubmitQueueRegex:  v.GetString(KeySubmitQueueRegex),
		PrePushEvent:      v.GetBool(KeyPrePushEvent),
		PreventUnaccepted: v.GetBool(KeyPreventUnaccepted),
		BuildablesCheck:   v.GetBool(KeyBuildablesCheck),
		RunUnit:           v.GetBool(KeyRunUnit),
		UnitCommand:       v.GetString(KeyUnitCommand),
		CascadeHalt:       v.GetBool(KeyCascadeHalt),
		CachePath:         v.GetString(KeyCachePath),
		CacheDisabled:     v.GetBool(KeyCacheDisabled),
		Trace:             v.GetBool(KeyTrace),
	}
}

// Onto returns the configured default target, or DefaultOnto
func (s *Settings) Onto() string {
	if s.OntoDefault != "" {
		return s.OntoDefault
	}
	return DefaultOnto
}
