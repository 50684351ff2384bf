// Package config loads application configuration from a config file and
// environment variables.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	JWT      JWTConfig
	Admin    AdminConfig
	LogLevel string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SMTPConfig holds outbound mail settings for the notification
// dispatcher.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	// AdminEmails receive copies of purchase and resolution notices.
	AdminEmails []string
}

// JWTConfig holds admin session token settings.
type JWTConfig struct {
	Secret string
	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int
}

// AdminConfig holds the bootstrap admin credentials created at startup
// when no matching user exists.
type AdminConfig struct {
	Email    string
	Password string
}

// Load reads configuration from config.yaml (optional) and environment
// variables, applying defaults for local development.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; environment variables and
		// defaults cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("Server.Port", "8080")
	viper.SetDefault("Database.Host", "localhost")
	viper.SetDefault("Database.Port", "5432")
	viper.SetDefault("Database.User", "postgres")
	viper.SetDefault("Database.Password", "postgres")
	viper.SetDefault("Database.Name", "autorifa")
	viper.SetDefault("Database.SSLMode", "disable")
	viper.SetDefault("SMTP.Host", "localhost")
	viper.SetDefault("SMTP.Port", "587")
	viper.SetDefault("SMTP.From", "no-reply@autorifa.local")
	viper.SetDefault("SMTP.AdminEmails", []string{})
	viper.SetDefault("JWT.Secret", "dev-secret-change-me")
	viper.SetDefault("JWT.ExpiresIn", 24*60*60)
	viper.SetDefault("Admin.Email", "admin@autorifa.local")
	viper.SetDefault("Admin.Password", "admin")
	viper.SetDefault("LogLevel", "info")
}
