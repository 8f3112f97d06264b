package core

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string `mapstructure:"engine"` // postgres | sqlite3 | memory
		Host          string `mapstructure:"host"`
		Port          string `mapstructure:"port"`
		Name          string `mapstructure:"name"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		AdminUser     string `mapstructure:"adminuser"`
		AdminPassword string `mapstructure:"adminpassword"`
		DisableTLS    bool   `mapstructure:"disabletls"`
		MaxOpenConns  int    `mapstructure:"maxopenconns"`
	}

	ServerConfig struct {
		Address            string        `mapstructure:"address"`
		DebugAddress       string        `mapstructure:"debugaddress"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdowntimeout"`
		JWTExpirationDelta time.Duration `mapstructure:"jwtexpirationdelta"`
	}

	CompletionConfig struct {
		// VerifyFailureThreshold is the number of consecutive failed writes for a unit
		// after which the learner may override the completion manually.
		VerifyFailureThreshold int           `mapstructure:"verifyfailurethreshold"`
		DebounceDelay          time.Duration `mapstructure:"debouncedelay"`
		RetryDelay             time.Duration `mapstructure:"retrydelay"`
		MaxAutoRetries         int           `mapstructure:"maxautoretries"`
		VideoCompleteThreshold int           `mapstructure:"videocompletethreshold"` // watched %
	}

	ProgressConfig struct {
		StructureTTL     time.Duration `mapstructure:"structurettl"`
		BatchWorkers     int           `mapstructure:"batchworkers"`
		BatchPageSize    int           `mapstructure:"batchpagesize"`
		RecomputeTimeout time.Duration `mapstructure:"recomputetimeout"`
	}

	RedisConfig struct {
		Address  string `mapstructure:"address"` // empty: in-process structure cache
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	}

	AMQPConfig struct {
		URI      string `mapstructure:"uri"` // empty: events disabled
		Exchange string `mapstructure:"exchange"`
		Queue    string `mapstructure:"queue"`
	}

	NotifyConfig struct {
		SendgridAPIKey string `mapstructure:"sendgridapikey"`
		FromName       string `mapstructure:"fromname"`
		FromEmail      string `mapstructure:"fromemail"`
		OpsEmail       string `mapstructure:"opsemail"`
	}

	Config struct {
		Env          string `mapstructure:"env"`
		Build        string `mapstructure:"build"`
		Debug        bool   `mapstructure:"debug"`
		TestMode     bool   `mapstructure:"testmode"`
		AppName      string `mapstructure:"appname"`
		SecretKey    string `mapstructure:"secretkey"`
		RollbarToken string `mapstructure:"rollbartoken"`

		Database   DatabaseConfig   `mapstructure:"database"`
		Server     ServerConfig     `mapstructure:"server"`
		Completion CompletionConfig `mapstructure:"completion"`
		Progress   ProgressConfig   `mapstructure:"progress"`
		Redis      RedisConfig      `mapstructure:"redis"`
		AMQP       AMQPConfig       `mapstructure:"amqp"`
		Notify     NotifyConfig     `mapstructure:"notify"`
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Maendeleo")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "maendeleo")
	v.SetDefault("database.user", "maendeleo")
	v.SetDefault("database.password", "maendeleo")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 20)

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("completion.verifyFailureThreshold", 2)
	v.SetDefault("completion.debounceDelay", 2*time.Second)
	v.SetDefault("completion.retryDelay", 3*time.Second)
	v.SetDefault("completion.maxAutoRetries", 5)
	v.SetDefault("completion.videoCompleteThreshold", 90)

	v.SetDefault("progress.structureTTL", 5*time.Minute)
	v.SetDefault("progress.batchWorkers", 8)
	v.SetDefault("progress.batchPageSize", 500)
	v.SetDefault("progress.recomputeTimeout", 30*time.Second)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("amqp.uri", "")
	v.SetDefault("amqp.exchange", "maendeleo.events")
	v.SetDefault("amqp.queue", "maendeleo.structure")

	v.SetDefault("notify.sendgridApiKey", "")
	v.SetDefault("notify.fromName", "Maendeleo")
	v.SetDefault("notify.fromEmail", "noreply@localhost")
	v.SetDefault("notify.opsEmail", "")
}

// NewConfig loads the configuration for the current ENV (DEV by default).
// Values are read from the environment (prefixed with ENV, eg. DEV_DATABASE_HOST)
// after loading config/.env.<env> if it exists.
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}
	conf.Env = env
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	switch c.Database.Engine {
	case "postgres", "sqlite3", "memory":
	default:
		return fmt.Errorf("config: unsupported database engine %q", c.Database.Engine)
	}
	if c.Completion.VerifyFailureThreshold < 1 {
		return errors.New("config: completion.verifyFailureThreshold must be >= 1")
	}
	if c.Completion.VideoCompleteThreshold < 1 || c.Completion.VideoCompleteThreshold > 100 {
		return errors.New("config: completion.videoCompleteThreshold must be within 1..100")
	}
	return nil
}
