package agent

import (
	"encoding/json"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/distflow/localizer/pkg/deletion"
	derror "github.com/distflow/localizer/pkg/errors"
	"github.com/distflow/localizer/pkg/localcache"
)

const (
	defaultUser             = "default"
	defaultMetricsAddr      = "127.0.0.1:10380"
	defaultDispatcherShards = 16
	defaultCacheRoot        = "/tmp/localizer/cache"
)

// Config is the configuration of the localizer agent.
type Config struct {
	LogLevel  string `toml:"log-level" json:"log-level"`
	LogFile   string `toml:"log-file" json:"log-file"`
	LogFormat string `toml:"log-format" json:"log-format"`

	// User is the ownership scope served by the private tracker.
	User string `toml:"user" json:"user"`

	MetricsAddr      string   `toml:"metrics-addr" json:"metrics-addr"`
	DispatcherShards int      `toml:"dispatcher-shards" json:"dispatcher-shards"`
	CacheRoots       []string `toml:"cache-roots" json:"cache-roots"`

	Cache    localcache.Config `toml:"cache" json:"cache"`
	Deletion deletion.Config   `toml:"deletion" json:"deletion"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		log.L().Error("marshal agent config to json failed", zap.Error(err))
	}
	return string(cfg)
}

// FromFile loads the config from a toml file, rejecting unknown keys.
func (c *Config) FromFile(path string) error {
	metaData, err := toml.DecodeFile(path, c)
	if err != nil {
		return derror.Wrap(derror.ErrDecodeConfigFile, err)
	}
	undecoded := metaData.Undecoded()
	if len(undecoded) > 0 {
		undecodedItems := make([]string, 0, len(undecoded))
		for _, item := range undecoded {
			undecodedItems = append(undecodedItems, item.String())
		}
		return derror.ErrConfigUnknownItem.GenWithStackByArgs(
			strings.Join(undecodedItems, ","))
	}
	return nil
}

// Adjust fills in defaults and validates the config.
func (c *Config) Adjust() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.User == "" {
		c.User = defaultUser
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaultMetricsAddr
	}
	if c.DispatcherShards <= 0 {
		c.DispatcherShards = defaultDispatcherShards
	}
	if len(c.CacheRoots) == 0 {
		c.CacheRoots = []string{defaultCacheRoot}
	}
	if err := c.Cache.Adjust(); err != nil {
		return err
	}
	c.Deletion.Adjust()
	return nil
}
