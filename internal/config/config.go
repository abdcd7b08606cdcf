package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lowaak/treadmill-coach/internal/cues"
	"github.com/lowaak/treadmill-coach/internal/workout"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TREADMILL_LOG_FILE
const EnvPrefix = "TREADMILL"

// Config is the resolved process configuration
type Config struct {
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	ProgramsDir string
	StatsFile   string

	AudioEnabled  bool
	CountdownFile string
	SampleRate    int

	TickInterval time.Duration

	CountdownDuration   time.Duration
	CountdownLeadBuffer time.Duration
	VoiceBuffer         time.Duration
	ResetGrace          time.Duration

	Headless bool
	Program  string
}

// flag name -> viper key
var flagKeys = map[string]string{
	"log-file":              "log.file",
	"log-max-size":          "log.max_size_mb",
	"log-max-backups":       "log.max_backups",
	"log-max-age":           "log.max_age_days",
	"programs-dir":          "programs.dir",
	"stats-file":            "stats.file",
	"audio":                 "audio.enabled",
	"countdown-file":        "audio.countdown_file",
	"sample-rate":           "audio.sample_rate",
	"tick-interval":         "session.tick_interval",
	"countdown-duration":    "cues.countdown_duration",
	"countdown-lead-buffer": "cues.countdown_lead_buffer",
	"voice-buffer":          "cues.voice_buffer",
	"reset-grace":           "cues.reset_grace",
	"headless":              "headless",
	"program":               "program",
}

func newFlagSet(name string) *pflag.FlagSet {
	defaults := cues.DefaultTiming()

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("config", "", "path to a config file (yaml, toml or json)")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")

	flags.String("log-file", defaultLogFile(), "log file path")
	flags.Int("log-max-size", 10, "log file size in MB before rotation")
	flags.Int("log-max-backups", 3, "rotated log files to keep")
	flags.Int("log-max-age", 28, "days to keep rotated log files")

	flags.String("programs-dir", "", "directory of additional workout program files")
	flags.String("stats-file", workout.DefaultStatsPath(), "completion stats file")

	flags.Bool("audio", true, "play audio cues")
	flags.String("countdown-file", "", "audio file used as the countdown chime (synthesized when empty)")
	flags.Int("sample-rate", 44100, "audio output sample rate")

	flags.Duration("tick-interval", 100*time.Millisecond, "workout clock tick interval")

	flags.Duration("countdown-duration", defaults.CountdownDuration, "countdown chime length")
	flags.Duration("countdown-lead-buffer", defaults.CountdownLeadBuffer, "slack before the countdown starts")
	flags.Duration("voice-buffer", defaults.VoiceBuffer, "gap between a voice cue and the countdown")
	flags.Duration("reset-grace", defaults.ResetGrace, "delay before cues of a finished segment are torn down")

	flags.Bool("headless", false, "run without the terminal UI")
	flags.String("program", "", "start this program immediately (required with --headless)")
	return flags
}

func defaultLogFile() string {
	return filepath.Join(filepath.Dir(workout.DefaultStatsPath()), "treadmill-coach.log")
}

// Load resolves configuration from, in increasing precedence: flag
// defaults, the config file, the environment (after loading the env file)
// and explicitly set flags.
func Load(name string, args []string) (*Config, error) {
	flags := newFlagSet(name)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
		}
	}

	if configFile, _ := flags.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		LogFile:             v.GetString("log.file"),
		LogMaxSizeMB:        v.GetInt("log.max_size_mb"),
		LogMaxBackups:       v.GetInt("log.max_backups"),
		LogMaxAgeDays:       v.GetInt("log.max_age_days"),
		ProgramsDir:         v.GetString("programs.dir"),
		StatsFile:           v.GetString("stats.file"),
		AudioEnabled:        v.GetBool("audio.enabled"),
		CountdownFile:       v.GetString("audio.countdown_file"),
		SampleRate:          v.GetInt("audio.sample_rate"),
		TickInterval:        v.GetDuration("session.tick_interval"),
		CountdownDuration:   v.GetDuration("cues.countdown_duration"),
		CountdownLeadBuffer: v.GetDuration("cues.countdown_lead_buffer"),
		VoiceBuffer:         v.GetDuration("cues.voice_buffer"),
		ResetGrace:          v.GetDuration("cues.reset_grace"),
		Headless:            v.GetBool("headless"),
		Program:             v.GetString("program"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be repaired with a default
func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	case c.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	case c.Headless && c.Program == "":
		return fmt.Errorf("--headless requires --program")
	}
	if _, err := c.Timing(); err != nil {
		return err
	}
	return nil
}

// Timing builds the cue scheduler timing from the configured overrides
func (c *Config) Timing() (cues.Timing, error) {
	t := cues.DefaultTiming()
	t.CountdownDuration = c.CountdownDuration
	t.CountdownLeadBuffer = c.CountdownLeadBuffer
	t.VoiceBuffer = c.VoiceBuffer
	t.ResetGrace = c.ResetGrace
	if c.CountdownFile != "" {
		t.CountdownResource = c.CountdownFile
	}
	if err := t.Validate(); err != nil {
		return cues.Timing{}, fmt.Errorf("invalid cue timing: %w", err)
	}
	return t, nil
}
