package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pithecene-io/imgset/imgset/s3"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// for example IMGSET_BACKEND or IMGSET_S3_ENDPOINT.
const EnvPrefix = "IMGSET"

const keyDelimiter = "::"

// Config selects and configures a storage backend.
type Config struct {
	// Backend is the backend kind. Default: local.
	Backend Kind `mapstructure:"backend"`

	// Root is the local filesystem root. Default: ".".
	Root string `mapstructure:"root"`

	// PathMapping rewrites key prefixes before they reach the store.
	// LoadConfig fills it from the path_mapping list.
	PathMapping map[string]string `mapstructure:"-"`

	// Mappings is the path_mapping list as read from a config file. Entries
	// are records rather than map keys so prefixes keep their case.
	Mappings []MappingRule `mapstructure:"path_mapping"`

	// ClusterName selects DefaultPathMapping for the remote backend when no
	// PathMapping is given, and names the default client in URI keys.
	ClusterName string `mapstructure:"cluster_name"`

	// S3 configures the default remote client.
	S3 S3Config `mapstructure:"s3"`

	// Clusters configures additional named remote clients.
	Clusters map[string]S3Config `mapstructure:"clusters"`
}

// MappingRule rewrites the key prefix From into To.
type MappingRule struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// S3Config configures one S3-compatible client.
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
}

func (c S3Config) clientConfig() s3.ClientConfig {
	return s3.ClientConfig{
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		UsePathStyle: c.UsePathStyle,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
	}
}

// LoadConfig reads a backend config file (YAML, JSON or TOML by extension)
// and applies IMGSET_* environment overrides. An empty path reads
// environment and defaults only.
//
// path_mapping is a list of {from, to} records:
//
//	path_mapping:
//	  - from: data/ImageNet/
//	    to: "openmmlab:s3://openmmlab/datasets/classification/imagenet/"
func LoadConfig(path string) (Config, error) {
	// Mapping keys contain dots, so nested keys use "::" instead.
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	mapping, err := cfg.mappingTable()
	if err != nil {
		return Config{}, err
	}
	cfg.PathMapping = mapping
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", string(Local))
	v.SetDefault("root", ".")
	v.SetDefault("cluster_name", "")
	v.SetDefault("s3::region", s3.DefaultRegion)
	v.SetDefault("s3::endpoint", "")
	v.SetDefault("s3::use_path_style", false)
	v.SetDefault("s3::access_key", "")
	v.SetDefault("s3::secret_key", "")
	v.SetDefault("s3::bucket", "")
	v.SetDefault("s3::prefix", "")
}

// Validate checks that cfg names a known backend.
func (c Config) Validate() error {
	kind := c.Backend
	if kind == "" {
		kind = Local
	}
	if _, ok := constructors[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	mapping, err := c.mappingTable()
	if err != nil {
		return err
	}
	if kind == Remote && c.S3.Bucket == "" && len(mapping) == 0 && c.ClusterName == "" {
		return errors.New("remote backend needs s3.bucket, path_mapping or cluster_name")
	}
	return nil
}

// mappingTable merges PathMapping and Mappings; list entries win.
func (c Config) mappingTable() (map[string]string, error) {
	if len(c.PathMapping) == 0 && len(c.Mappings) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(c.PathMapping)+len(c.Mappings))
	for from, to := range c.PathMapping {
		out[from] = to
	}
	for i, r := range c.Mappings {
		if r.From == "" {
			return nil, fmt.Errorf("path_mapping[%d]: empty from prefix", i)
		}
		out[r.From] = r.To
	}
	return out, nil
}
