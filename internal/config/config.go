package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"`
	} `yaml:"jwt"`

	WS struct {
		WriteTimeoutSec       int `yaml:"write_timeout_sec"`        // Дедлайн записи в сокет
		PongTimeoutSec        int `yaml:"pong_timeout_sec"`         // Liveness: ждем pong
		SendBuffer            int `yaml:"send_buffer"`              // Буфер исходящих на соединение
		MaxConnectionsPerUser int `yaml:"max_connections_per_user"` // 0 = без лимита
	} `yaml:"ws"`

	Notify struct {
		DigestIntervalSec       int `yaml:"digest_interval_sec"`
		SubscriptionIntervalSec int `yaml:"subscription_interval_sec"`
		JitterSec               int `yaml:"jitter_sec"`
		RetentionDays           int `yaml:"retention_days"`
		SweepIntervalSec        int `yaml:"sweep_interval_sec"`
		ShutdownGraceSec        int `yaml:"shutdown_grace_sec"`
	} `yaml:"notify"`
}

var AppConfig *Config

// LoadConfig загружает конфигурацию из config.yaml или из переменных
// окружения (режим теста, если задан DATABASE_URL)
func LoadConfig() {
	var cfg Config

	dbURL := os.Getenv("DATABASE_URL")

	if dbURL == "" {
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config/config.yaml"
		}

		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("Failed to open config file at %s: %v", configPath, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("Failed to parse config file at %s: %v", configPath, err)
		}

		cfg.applyDefaults()
		AppConfig = &cfg
		return
	}

	log.Println("Loading configuration from environment variables")

	cfg.Database.DSN = dbURL
	cfg.Server.Env = os.Getenv("SERVER_ENV")
	cfg.Server.Port, _ = strconv.Atoi(os.Getenv("SERVER_PORT"))
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	cfg.JWT.TTL = 60

	cfg.applyDefaults()
	AppConfig = &cfg
}

// GetConfig возвращает загруженную конфигурацию
func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}

func (c *Config) applyDefaults() {
	if c.WS.WriteTimeoutSec == 0 {
		c.WS.WriteTimeoutSec = 10
	}
	if c.WS.PongTimeoutSec == 0 {
		c.WS.PongTimeoutSec = 60
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 256
	}
	if c.Notify.DigestIntervalSec == 0 {
		c.Notify.DigestIntervalSec = int((6 * time.Hour).Seconds())
	}
	if c.Notify.SubscriptionIntervalSec == 0 {
		c.Notify.SubscriptionIntervalSec = int(time.Hour.Seconds())
	}
	if c.Notify.JitterSec == 0 {
		c.Notify.JitterSec = 30
	}
	if c.Notify.RetentionDays == 0 {
		c.Notify.RetentionDays = 30
	}
	if c.Notify.SweepIntervalSec == 0 {
		c.Notify.SweepIntervalSec = int((12 * time.Hour).Seconds())
	}
	if c.Notify.ShutdownGraceSec == 0 {
		c.Notify.ShutdownGraceSec = 10
	}
}

// --- Удобные аккессоры длительностей ---

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WS.WriteTimeoutSec) * time.Second
}

func (c *Config) PongTimeout() time.Duration {
	return time.Duration(c.WS.PongTimeoutSec) * time.Second
}

func (c *Config) DigestInterval() time.Duration {
	return time.Duration(c.Notify.DigestIntervalSec) * time.Second
}

func (c *Config) SubscriptionInterval() time.Duration {
	return time.Duration(c.Notify.SubscriptionIntervalSec) * time.Second
}

func (c *Config) NotifyJitter() time.Duration {
	return time.Duration(c.Notify.JitterSec) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Notify.SweepIntervalSec) * time.Second
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Notify.ShutdownGraceSec) * time.Second
}
