// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validStorageTypes = []string{"local", "dynamodb"}
)

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.frontend_url", "host_frontend_url")
	v.BindEnv("host.ssl.enabled", "host_ssl_enabled")
	v.BindEnv("host.ssl.certificate_path", "host_ssl_certificate_path")
	v.BindEnv("host.ssl.certificate_key_path", "host_ssl_certificate_key_path")

	v.BindEnv("auth.jwt_secret", "auth_jwt_secret")
	v.BindEnv("auth.allowed_domains", "auth_allowed_domains")
	v.BindEnv("auth.bootstrap_admin_email", "auth_bootstrap_admin_email")

	v.BindEnv("storage.type", "storage_type")
	v.BindEnv("storage.driver", "storage_driver")
	v.BindEnv("storage.path", "storage_path")
	v.BindEnv("storage.dsn", "storage_dsn")

	v.BindEnv("aws.region", "aws_region")
	v.BindEnv("aws.users_table", "aws_users_table")
	v.BindEnv("aws.tokens_table", "aws_tokens_table")
	v.BindEnv("aws.refresh_table", "aws_refresh_table")
	v.BindEnv("aws.usage_table", "aws_usage_table")

	v.BindEnv("mail.enabled", "mail_enabled")
	v.BindEnv("mail.host", "mail_host")
	v.BindEnv("mail.port", "mail_port")
	v.BindEnv("mail.sender_address", "mail_sender_address")
	v.BindEnv("mail.password", "mail_password")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.frontend_url", "http://localhost:5173")
	v.SetDefault("host.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("host.ssl.enabled", false)
	v.SetDefault("host.rate_limit", 5)
	v.SetDefault("host.rate_burst", 10)

	v.SetDefault("auth.allowed_domains", "clipboardhealth.com,wops-ai.com")
	v.SetDefault("auth.access_ttl", 30*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.verify_ttl", 24*time.Hour)
	v.SetDefault("auth.reset_ttl", time.Hour)
	v.SetDefault("auth.assert_ttl", 15*time.Minute)
	v.SetDefault("auth.lock_threshold", 5)
	v.SetDefault("auth.lock_duration", 30*time.Minute)

	v.SetDefault("auth.plans.free", 10)
	v.SetDefault("auth.plans.premium", 100)
	v.SetDefault("auth.plans.enterprise", 1000)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "auth.db")
	v.SetDefault("storage.timeout", 5*time.Second)

	v.SetDefault("aws.users_table", "wops-users")
	v.SetDefault("aws.tokens_table", "wops-verification-tokens")
	v.SetDefault("aws.refresh_table", "wops-refresh-tokens")
	v.SetDefault("aws.usage_table", "wops-user-usage")

	v.SetDefault("mail.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetBool("host.ssl.enabled") {
		if v.GetString("host.ssl.certificate_path") == "" {
			return errors.New("no ssl certificate path provided")
		}

		if v.GetString("host.ssl.certificate_key_path") == "" {
			return errors.New("no ssl certificate key path provided")
		}
	}

	if v.GetString("auth.jwt_secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	if v.GetString("auth.allowed_domains") == "" {
		return errors.New("auth.allowed_domains can't be empty, nobody would be able to register")
	}

	if v.GetInt("auth.lock_threshold") <= 0 {
		return errors.New("auth.lock_threshold must be bigger than 0")
	}

	for _, plan := range []string{"free", "premium", "enterprise"} {
		if v.GetInt("auth.plans."+plan) <= 0 {
			return fmt.Errorf("auth.plans.%s must be bigger than 0", plan)
		}
	}

	if !slices.Contains(validStorageTypes, v.GetString("storage.type")) {
		return errors.New("invalid storage type provided")
	}

	switch v.GetString("storage.type") {
	case "dynamodb":
		{
			if v.GetString("aws.region") == "" {
				return errors.New("aws region can't be empty")
			}
		}
	case "local":
		{
			if v.GetString("storage.driver") == "postgres" && v.GetString("storage.dsn") == "" {
				return errors.New("no postgres dsn provided")
			}
		}
	}

	if v.GetBool("mail.enabled") {
		if v.GetString("mail.host") == "" {
			return errors.New("mail host can't be empty")
		}

		if v.GetString("mail.sender_address") == "" {
			return errors.New("mail sender address can't be empty")
		}
	} else {
		fmt.Println("[WARNING]: Mail delivery is disabled. Verification links will only show up in the logs")
	}

	return nil
}
