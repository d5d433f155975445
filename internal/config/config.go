// Package config содержит логику чтения конфигурации сервиса govpoints.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса govpoints.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	AdminToken       string `env:"ADMIN_TOKEN"`
	RewardPoolBudget int64  `env:"REWARD_POOL_BUDGET"`
}

// DefaultRewardPoolBudget — стартовый бюджет пула вознаграждений.
const DefaultRewardPoolBudget = 1_000_000

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAdminToken := cfg.AdminToken
	envPoolBudget := cfg.RewardPoolBudget

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty for in-memory storage)")
	flag.StringVar(&cfg.AdminToken, "t", "", "bearer token for operator endpoints")
	flag.Int64Var(&cfg.RewardPoolBudget, "b", DefaultRewardPoolBudget, "initial reward pool budget in points")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAdminToken != "" {
		cfg.AdminToken = envAdminToken
	}
	if envPoolBudget != 0 {
		cfg.RewardPoolBudget = envPoolBudget
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.RewardPoolBudget <= 0 {
		cfg.RewardPoolBudget = DefaultRewardPoolBudget
	}

	return cfg, nil
}
