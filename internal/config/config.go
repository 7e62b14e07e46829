// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. BINGO_PORT.
const EnvPrefix = "BINGO"

type ServerConfig struct {
	Bind           string
	Port           int
	BaseURL        string
	AllowedOrigins []string
	Verbose        bool
}

type DatabaseConfig struct {
	URL     string
	Migrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Queue    int
}

type AuthConfig struct {
	TokenExpiry    string
	PrivateKeyPath string
	PublicKeyPath  string
}

type GameConfig struct {
	GraceWindow time.Duration
	OpTimeout   time.Duration
	MinAutoCall time.Duration
	RoomIdle    time.Duration
	Seed        int64
}

// Config is everything the server reads from flags and the environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Game     GameConfig
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

// DSN is the Postgres connection string. Empty means run in memory.
func (c *Config) DSN() string {
	return c.Database.URL
}

// JoinURL is the link players follow to join a room.
func (c *Config) JoinURL(code string) string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/join/" + code
}

// Origins are the browser origins allowed to call the API with credentials.
// Without an explicit list only the base URL's own origin is allowed.
func (c *Config) Origins() []string {
	if len(c.Server.AllowedOrigins) > 0 {
		return c.Server.AllowedOrigins
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return []string{u.Scheme + "://" + u.Host}
}

// Validate checks values that flags alone cannot constrain.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Server.Port)
	}
	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base url: %q", c.Server.BaseURL)
		}
	}
	if c.Game.GraceWindow < 0 {
		return errors.New("grace window must not be negative")
	}
	if c.Game.MinAutoCall <= 0 {
		return errors.New("minimum auto-call interval must be positive")
	}
	if c.Game.RoomIdle < 0 {
		return errors.New("room idle timeout must not be negative")
	}
	if c.Game.OpTimeout <= 0 {
		return errors.New("operation timeout must be positive")
	}
	if (c.Auth.PrivateKeyPath == "") != (c.Auth.PublicKeyPath == "") {
		return errors.New("both --key-private and --key-public must be provided together")
	}
	if c.Redis.Queue < 1 {
		return errors.New("redis queue must hold at least one event")
	}
	return nil
}

// NewCommand builds the server command. Every flag can also be set from
// the environment as BINGO_<FLAG>, with dashes turned into underscores.
// run is called with the validated config.
func NewCommand(cfg *Config, version string, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bingo-server",
		Short:         "Multiplayer bingo rooms over HTTP and WebSocket.",
		Args:          cobra.ExactArgs(0),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	RegisterFlags(fs, cfg)
	BindEnv(fs, viper.New())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("bingo-server v{{.Version}}\n")
	return cmd
}

// RegisterFlags declares every flag on fs, writing into cfg.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Server.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: BINGO_BIND)")
	fs.IntVarP(&cfg.Server.Port, "port", "p", 8080, "port to listen on (env: BINGO_PORT)")
	fs.StringVar(&cfg.Server.BaseURL, "base-url", "http://localhost:8080", "public URL used in join links (env: BINGO_BASE_URL)")
	fs.StringSliceVar(&cfg.Server.AllowedOrigins, "allowed-origins", nil, "browser origins allowed to call the API; empty allows only the base URL's origin (env: BINGO_ALLOWED_ORIGINS)")
	fs.BoolVarP(&cfg.Server.Verbose, "verbose", "v", false, "log at debug level (env: BINGO_VERBOSE)")

	fs.StringVar(&cfg.Database.URL, "database-url", "", "postgres connection string; empty keeps rooms in memory (env: BINGO_DATABASE_URL)")
	fs.BoolVar(&cfg.Database.Migrate, "migrate", true, "apply schema migrations on startup (env: BINGO_MIGRATE)")

	fs.StringVar(&cfg.Redis.Addr, "redis-addr", "", "redis address for event fan-out; empty disables it (env: BINGO_REDIS_ADDR)")
	fs.StringVar(&cfg.Redis.Password, "redis-password", "", "redis password (env: BINGO_REDIS_PASSWORD)")
	fs.IntVar(&cfg.Redis.DB, "redis-db", 0, "redis database index (env: BINGO_REDIS_DB)")
	fs.IntVar(&cfg.Redis.Queue, "redis-queue", 256, "events buffered for redis before dropping (env: BINGO_REDIS_QUEUE)")

	fs.StringVar(&cfg.Auth.TokenExpiry, "token-expire-time", "72h", "identity token lifetime, or never (env: BINGO_TOKEN_EXPIRE_TIME)")
	fs.StringVar(&cfg.Auth.PrivateKeyPath, "key-private", "", "ed25519 private key file; empty generates one (env: BINGO_KEY_PRIVATE)")
	fs.StringVar(&cfg.Auth.PublicKeyPath, "key-public", "", "ed25519 public key file (env: BINGO_KEY_PUBLIC)")

	fs.DurationVar(&cfg.Game.GraceWindow, "grace-window", game.DefaultGraceWindow, "how long co-winners may still claim after the first valid claim (env: BINGO_GRACE_WINDOW)")
	fs.DurationVar(&cfg.Game.OpTimeout, "op-timeout", 5*time.Second, "timeout for store calls made by timers (env: BINGO_OP_TIMEOUT)")
	fs.DurationVar(&cfg.Game.MinAutoCall, "min-autocall", time.Second, "shortest auto-call interval a host may request (env: BINGO_MIN_AUTOCALL)")
	fs.DurationVar(&cfg.Game.RoomIdle, "room-idle", 30*time.Minute, "evict rooms nobody is watching after this long without activity, 0 keeps them (env: BINGO_ROOM_IDLE)")
	fs.Int64Var(&cfg.Game.Seed, "seed", 0, "fixed random seed for cards and calls, 0 for random (env: BINGO_SEED)")
}

// BindEnv fills any flag not set on the command line from the environment.
func BindEnv(fs *pflag.FlagSet, v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if f.Value.Type() == "stringSlice" {
				if s, ok := val.(string); ok {
					_ = f.Value.(pflag.SliceValue).Replace(strings.Split(s, ","))
					return
				}
			}
			_ = fs.Set(f.Name, fmt.Sprintf("%v", val))
		}
	})
}
