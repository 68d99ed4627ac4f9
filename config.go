package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teamech/go-teamech/client"
	"github.com/teamech/go-teamech/core"
)

// Config is the command line, environment and config file merged, in that
// order of precedence.
type Config struct {
	Remote    string        `mapstructure:"remote"`
	Port      int           `mapstructure:"port"`
	Pad       string        `mapstructure:"pad"`
	ShowHex   bool          `mapstructure:"showhex"`
	Verbose   bool          `mapstructure:"verbose"`
	Bloom     bool          `mapstructure:"bloom"`
	Retry     time.Duration `mapstructure:"retry"`
	Tolerance time.Duration `mapstructure:"tolerance"`
	Keygen    int           `mapstructure:"keygen"`
}

var config Config

const usage = "Usage: teamech [flags] host:remoteport [localport] padfile"

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("teamech", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.StringP("remote", "r", "", "server address (host:port)")
	fs.IntP("port", "p", 0, "local UDP port (0 lets the OS pick)")
	fs.String("pad", "", "path to the shared pad file")
	fs.BoolP("showhex", "x", false, "also print messages as hex bytes")
	fs.BoolP("verbose", "v", false, "verbose mode")
	fs.Bool("bloom", true, "remember nonces across session rebuilds to drop replays")
	fs.Duration("retry", client.DefaultRetryDelay, "backoff after a failed attempt")
	fs.Duration("tolerance", core.DefaultTolerance, "accepted distance between message timestamps and the local clock")
	fs.Int("keygen", 0, "write a random pad of given length in bytes to the pad path and exit")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		fs.PrintDefaults()
	}
	return fs
}

// loadConfig parses args, then fills the gaps from TEAMECH_* variables and
// the optional config file.
func loadConfig(args []string) (Config, error) {
	var cfg Config
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetEnvPrefix("teamech")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return cfg, err
	}
	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	// host:port [localport] padfile
	switch pos := fs.Args(); len(pos) {
	case 0:
	case 2:
		v.Set("remote", pos[0])
		v.Set("pad", pos[1])
	case 3:
		v.Set("remote", pos[0])
		v.Set("pad", pos[2])
		if n, err := strconv.ParseUint(pos[1], 10, 16); err == nil {
			v.Set("port", int(n))
		} else {
			log.Printf("Warning: %q is not a valid port number. Passing port 0 (auto-allocate) to the OS instead.", pos[1])
			v.Set("port", 0)
		}
	default:
		return cfg, fmt.Errorf("unexpected arguments %q", pos)
	}

	err := v.Unmarshal(&cfg)
	return cfg, err
}
