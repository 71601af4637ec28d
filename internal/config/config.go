package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Codec    CodecConfig  `mapstructure:"codec"`
	Server   ServerConfig `mapstructure:"server"`
	LogLevel string       `mapstructure:"log_level"`
}

type PathsConfig struct {
	WeightsPath string `mapstructure:"weights_path"`
	ModelDir    string `mapstructure:"model_dir"`
}

type CodecConfig struct {
	Arch        string `mapstructure:"arch"`
	SampleRate  int    `mapstructure:"sample_rate"`
	ConvWorkers int    `mapstructure:"conv_workers"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxBodyBytes    int    `mapstructure:"max_body_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			WeightsPath: "models/seanet_24khz.safetensors",
			ModelDir:    "models",
		},
		Codec: CodecConfig{
			Arch:        ArchEnCodec24kHz,
			SampleRate:  24000,
			ConvWorkers: 0,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxBodyBytes:    32 << 20,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each config key to its canonical long flag.
var flagKeys = map[string]string{
	"paths.weights_path":      "paths-weights-path",
	"paths.model_dir":         "paths-model-dir",
	"codec.arch":              "codec-arch",
	"codec.sample_rate":       "codec-sample-rate",
	"codec.conv_workers":      "codec-conv-workers",
	"server.listen_addr":      "server-listen-addr",
	"server.workers":          "server-workers",
	"server.max_body_bytes":   "server-max-body-bytes",
	"server.request_timeout":  "server-request-timeout",
	"server.shutdown_timeout": "server-shutdown-timeout",
	"log_level":               "log-level",
}

// flagAliases maps config keys to short convenience flags. An alias only
// applies when the flag was explicitly set, so it never shadows the config
// file or environment.
var flagAliases = map[string]string{
	"paths.weights_path": "weights",
	"codec.arch":         "arch",
	"codec.conv_workers": "conv-workers",
	"server.listen_addr": "addr",
	"server.workers":     "workers",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-weights-path", defaults.Paths.WeightsPath, "Path to the safetensors weights file")
	fs.String("weights", defaults.Paths.WeightsPath, "Path to the safetensors weights file (alias for --paths-weights-path)")
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Directory for downloaded weight artifacts")
	fs.String("codec-arch", defaults.Codec.Arch, "Tower architecture (default|encodec-24khz|mimi)")
	fs.String("arch", defaults.Codec.Arch, "Tower architecture (alias for --codec-arch)")
	fs.Int("codec-sample-rate", defaults.Codec.SampleRate, "PCM sample rate in Hz")
	fs.Int("codec-conv-workers", defaults.Codec.ConvWorkers, "Goroutines per convolution (0 or 1 = sequential)")
	fs.Int("conv-workers", defaults.Codec.ConvWorkers, "Goroutines per convolution (alias for --codec-conv-workers)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.String("addr", defaults.Server.ListenAddr, "HTTP listen address (alias for --server-listen-addr)")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent codec passes served")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent codec passes served (alias for --server-workers)")
	fs.Int("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Maximum HTTP request body size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request deadline in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("SEANET")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("paths.weights_path", "SEANET_WEIGHTS", "SEANET_PATHS_WEIGHTS_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind weights env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("seanet")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// bindFlags binds each long flag to its dotted config key, then applies the
// short aliases that were explicitly set. Binding keys directly keeps the
// config file and environment visible under the same keys; an unchanged flag
// only contributes its default after every other source.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	for key, name := range flagAliases {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v.Set(key, f.Value.String())
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.weights_path", c.Paths.WeightsPath)
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("codec.arch", c.Codec.Arch)
	v.SetDefault("codec.sample_rate", c.Codec.SampleRate)
	v.SetDefault("codec.conv_workers", c.Codec.ConvWorkers)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}
