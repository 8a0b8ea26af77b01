package demo

import (
	"time"

	"github.com/Trinoooo/quail_ev/consts"
	"github.com/spf13/viper"
)

const (
	defaultPingInterval   = time.Second
	defaultCommandTimeout = 3 * time.Second
)

type Config struct {
	vp *viper.Viper
}

// LoadConfig reads the optional yaml config under the home config path.
// A missing file falls back to defaults so the demo runs out of the box.
func LoadConfig() *Config {
	vp := viper.New()
	vp.AddConfigPath(consts.DefaultConfigPath)
	vp.SetConfigName("config")
	vp.SetConfigType("yaml")
	vp.SetDefault("ping.interval", defaultPingInterval)
	vp.SetDefault("ping.timeout", defaultCommandTimeout)
	_ = vp.ReadInConfig()
	return &Config{vp: vp}
}

func (c *Config) PingInterval() time.Duration {
	return c.vp.GetDuration("ping.interval")
}

func (c *Config) PingTimeout() time.Duration {
	return c.vp.GetDuration("ping.timeout")
}
