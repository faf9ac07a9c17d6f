package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dkeye/p2precorder/internal/domain"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "RECORDER"

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Media struct {
	VideoFile string `mapstructure:"video_file"`
	AudioFile string `mapstructure:"audio_file"`
	Loop      bool   `mapstructure:"loop"`
}

type Recorder struct {
	Timeslice time.Duration `mapstructure:"timeslice"`
	Filename  string        `mapstructure:"filename"`
}

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	LogLevel      string        `mapstructure:"log_level"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	ImportLimit   int           `mapstructure:"import_limit"`
	ImportWindow  time.Duration `mapstructure:"import_window"`
	ICEServers    []ICEServer   `mapstructure:"ice_servers"`
	GatherTimeout time.Duration `mapstructure:"gather_timeout"`
	Media         Media         `mapstructure:"media"`
	Recorder      Recorder      `mapstructure:"recorder"`
	Stdin         bool          `mapstructure:"stdin"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"port":           "port",
	"log-level":      "log_level",
	"stdin":          "stdin",
	"gather-timeout": "gather_timeout",
	"video":          "media.video_file",
	"audio":          "media.audio_file",
	"loop":           "media.loop",
	"timeslice":      "recorder.timeslice",
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then RECORDER_*
// environment variables, then the flags that were set explicitly.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("import_limit", 10)
	v.SetDefault("import_window", "10s")
	v.SetDefault("gather_timeout", "10s")
	v.SetDefault("media.video_file", "")
	v.SetDefault("media.audio_file", "")
	v.SetDefault("media.loop", true)
	v.SetDefault("recorder.timeslice", "1s")
	v.SetDefault("recorder.filename", "video.webm")
	v.SetDefault("stdin", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("log_level", cfg.LogLevel).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Connection() domain.ConnectionConfig {
	out := domain.ConnectionConfig{}
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		out.ICEServers = append(out.ICEServers, domain.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

// Level parses log_level, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
