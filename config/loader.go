package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/pushflow/errors"
)

const (
	configFileName = "config.yml"
	envFileName    = ".env"
)

type loadOptions struct {
	configFile string
	envFile    string
	dirs       []string
}

// Option customises LoadConfig.
type Option func(*loadOptions)

// WithConfigFile reads the YAML file at path instead of searching for one.
// The file must exist.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

// WithEnvFile loads the dotenv file at path instead of searching for one.
// The file must exist.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithSearchDirs replaces the directories searched for config.yml and .env.
func WithSearchDirs(dirs ...string) Option {
	return func(o *loadOptions) { o.dirs = dirs }
}

// LoadConfig fills cfg from, in increasing precedence, config.yml, the
// .env file and the process environment. Without explicit files, both are
// looked up in ./cmd/<service> and then the working directory; a missing
// file is not an error.
//
// Environment variables are bound for every key of cfg's mapstructure tree:
// stream.sse_window is read from STREAM_SSE_WINDOW.
func LoadConfig(service string, cfg any, opts ...Option) error {
	o := loadOptions{dirs: []string{filepath.Join("cmd", service), "."}}
	for _, opt := range opts {
		opt(&o)
	}

	configFile, err := o.resolve(o.configFile, configFileName)
	if err != nil {
		return err
	}
	envFile, err := o.resolve(o.envFile, envFileName)
	if err != nil {
		return err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return errors.InvalidConfig("failed to load " + envFile).WithCause(err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.InvalidConfig("failed to read " + configFile).WithCause(err)
		}
	}
	for _, key := range configKeys(reflect.TypeOf(cfg), "") {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return errors.Internal(err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return errors.InvalidConfig(fmt.Sprintf("failed to decode config for %s", service)).WithCause(err)
	}
	return nil
}

// Load reads the ServiceConfig for service, applies defaults and
// validates it. The name falls back to service when the file does not set
// one.
func Load(service string, opts ...Option) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := LoadConfig(service, &cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = service
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve returns explicit when set, failing if it does not exist, or the
// first dir containing name.
func (o *loadOptions) resolve(explicit, name string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.InvalidConfig("config file not found: " + explicit).WithCause(err)
		}
		return explicit, nil
	}
	for _, dir := range o.dirs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", nil
}

// configKeys lists the dotted keys of a config struct as viper sees them,
// following mapstructure tags and ",squash" embedding.
func configKeys(t reflect.Type, prefix string) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		if opts == "squash" {
			keys = append(keys, configKeys(f.Type, prefix)...)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			keys = append(keys, configKeys(ft, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
