package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel          string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort          string `yaml:"http-port" env:"HTTP_PORT" env-default:""`
	UserID            string `yaml:"user-id" env:"USER_ID" env-default:""`
	SQLiteStoragePath string `yaml:"sqlite-storage-path" env:"SQLITE_STORAGE_PATH" env-default:"crictactoe.db"`
	Redis             Redis  `yaml:"redis" env-prefix:"REDIS_"`
	Room              Room   `yaml:"room" env-prefix:"ROOM_"`
	Timers            Timers `yaml:"timers" env-prefix:"TIMERS_"`
}

type Redis struct {
	Host     string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"PORT" env-default:"6379"`
	Password string `yaml:"password" env:"PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"DB" env-default:"0"`
}

// Room - lifetime of room documents and retry of transient store failures.
type Room struct {
	TTL            time.Duration `yaml:"ttl" env:"TTL" env-default:"24h"`
	Retries        uint64        `yaml:"retries" env:"RETRIES" env-default:"2"`
	RetryBaseDelay time.Duration `yaml:"retry-base-delay" env:"RETRY_BASE_DELAY" env-default:"250ms"`
}

type Timers struct {
	Turn        time.Duration `yaml:"turn" env:"TURN" env-default:"15s"`
	Question    time.Duration `yaml:"question" env:"QUESTION" env-default:"30s"`
	LobbyReturn time.Duration `yaml:"lobby-return" env:"LOBBY_RETURN" env-default:"2s"`
}

// MustLoad - load all configurations in config.yml file, or from the environment when there is no file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err = cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}

		return config, nil
	}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return net.JoinHostPort(that.Host, that.Port)
}
