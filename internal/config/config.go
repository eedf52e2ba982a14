// config предоставляет структуру конфигурации клиента и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация клиента.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Stub    StubConfig    `yaml:"stub"`
}

// APIConfig — параметры доступа к REST API платформы.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" env:"API_BASE_URL" env-default:"http://localhost:8080/api"`
	Timeout   time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"30s"`
	UserAgent string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"bookhub-client"`
}

// SessionConfig — параметры локальной сессии и проактивного обновления токена.
//
// CheckInterval — период фоновой проверки срока действия access-токена;
// RefreshThreshold — остаток жизни токена, при котором запускается обновление;
// CachePath — путь к файлу локального кэша сессии (пустой — путь по умолчанию
// в пользовательской cache-директории).
type SessionConfig struct {
	CheckInterval    time.Duration `yaml:"check_interval" env:"SESSION_CHECK_INTERVAL" env-default:"60s"`
	RefreshThreshold time.Duration `yaml:"refresh_threshold" env:"SESSION_REFRESH_THRESHOLD" env-default:"2m"`
	CachePath        string        `yaml:"cache_path" env:"SESSION_CACHE_PATH"`
}

// StubConfig — настройки локального dev-сервера (cmd/stubserver).
type StubConfig struct {
	Host            string        `yaml:"host" env:"STUB_HOST" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"STUB_PORT" env-default:"8080"`
	JWTSecret       string        `yaml:"jwt_secret" env:"STUB_JWT_SECRET" env-default:"dev-secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"STUB_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"STUB_REFRESH_TOKEN_TTL" env-default:"720h"`
}

// Addr возвращает адрес в формате host:port.
func (s StubConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
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
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
