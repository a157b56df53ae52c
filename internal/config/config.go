// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	Password PasswordConfig `yaml:"password"`
	Limits   LimitsConfig   `yaml:"limits"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer"   env:"ISSUER" env-default:"auth-service"`
	Audience        []string      `yaml:"audience" env:"AUDIENCE" env-default:"habitflow-api"`
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — настройки кэша refresh-токенов.
// Пустой URL полностью отключает кэш: корректность обеспечивает Postgres.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL" env-default:""`
}

// PasswordConfig — стоимость argon2id-хэширования.
type PasswordConfig struct {
	MemoryKiB   uint32 `yaml:"memory_kib"  env:"PASSWORD_MEMORY_KIB"  env-default:"65536"`
	Iterations  uint32 `yaml:"iterations"  env:"PASSWORD_ITERATIONS"  env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env:"PASSWORD_PARALLELISM" env-default:"2"`
}

// LimitPolicy — одна политика ограничения частоты.
type LimitPolicy struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// LimitsConfig — три независимых уровня ограничения:
// общий трафик, аутентификация (login/refresh) и регистрация.
type LimitsConfig struct {
	General  LimitPolicy `yaml:"general"`
	Auth     LimitPolicy `yaml:"auth"`
	Register LimitPolicy `yaml:"register"`
	// TrustedIPHeader — заголовок с клиентским IP за доверенным прокси
	// (например, X-Real-Ip); пустое значение — брать RemoteAddr.
	TrustedIPHeader string `yaml:"trusted_ip_header" env:"TRUSTED_IP_HEADER" env-default:""`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		applyLimitDefaults(&cfg)
		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	applyLimitDefaults(&cfg)
	return &cfg, nil
}

// applyLimitDefaults выставляет политики по умолчанию, если они не заданы.
func applyLimitDefaults(cfg *Config) {
	if cfg.Limits.General.Window == 0 {
		cfg.Limits.General = LimitPolicy{Max: 100, Window: time.Minute}
	}
	if cfg.Limits.Auth.Window == 0 {
		cfg.Limits.Auth = LimitPolicy{Max: 10, Window: 15 * time.Minute}
	}
	if cfg.Limits.Register.Window == 0 {
		cfg.Limits.Register = LimitPolicy{Max: 5, Window: time.Hour}
	}
}
