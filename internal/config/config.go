// Package config provides parsing of configuration from a file or
// environment variables.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// Values are read by viper from an app.env file or environment variables.
type Config struct {
	ServerAddress  string        `mapstructure:"SERVER_ADDRESS"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	TokenDuration  time.Duration `mapstructure:"TOKEN_DURATION"`
	UsersDB        string        `mapstructure:"USERS_DB"`
	BalancesDB     string        `mapstructure:"BALANCES_DB"`
	TransactionsDB string        `mapstructure:"TRANSACTIONS_DB"`
	Environment    string        `mapstructure:"ENV"`
}

// Load reads configuration from the given path, falling back to
// environment variables and defaults when no config file exists.
func Load(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.SetDefault("SERVER_ADDRESS", ":8080")
	viper.SetDefault("JWT_SECRET", "ai-economic-advisor-secret-key")
	viper.SetDefault("TOKEN_DURATION", 24*time.Hour)
	viper.SetDefault("USERS_DB", "users.db")
	viper.SetDefault("BALANCES_DB", "balances.db")
	viper.SetDefault("TRANSACTIONS_DB", "transactions.db")
	viper.SetDefault("ENV", "development")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus environment variables are a complete configuration
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}
