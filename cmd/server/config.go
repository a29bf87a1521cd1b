package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options
type Config struct {
	// Server config
	Port       string `long:"port" env:"PORT" default:"8443" description:"Server port"`
	ConfigFile string `long:"config" env:"CONFIG_FILE" description:"Optional YAML file with relying-party settings"`

	// Relying party identity
	RPDisplayName string `long:"rp-name" env:"RP_NAME" default:"Passkey Authentication Service" description:"Relying party display name"`
	RPID          string `long:"rp-id" env:"RP_ID" default:"localhost" description:"Relying party ID (domain)"`
	RPOrigin      string `long:"rp-origin" env:"RP_ORIGIN" default:"https://localhost:8443" description:"Expected origin URL"`

	// Storage config
	StorageMode   string `long:"storage-mode" env:"STORAGE_MODE" default:"filesystem" choice:"filesystem" choice:"s3" choice:"memory" description:"Record storage backend"`
	ChallengeMode string `long:"challenge-mode" env:"CHALLENGE_MODE" default:"memory" choice:"memory" choice:"redis" description:"Challenge storage backend"`

	// Filesystem storage
	DataPath string `long:"data-path" env:"DATA_PATH" default:"./data" description:"Filesystem storage directory"`

	// S3 storage
	S3 struct {
		Endpoint  string `long:"s3-endpoint" env:"S3_ENDPOINT" default:"localhost:9000" description:"S3 endpoint (host:port)"`
		Bucket    string `long:"s3-bucket" env:"S3_BUCKET" default:"passkey-auth" description:"S3 bucket name"`
		AccessKey string `long:"s3-access-key" env:"S3_ACCESS_KEY" default:"minioadmin" description:"S3 access key"`
		SecretKey string `long:"s3-secret-key" env:"S3_SECRET_KEY" default:"minioadmin" description:"S3 secret key"`
		UseSSL    bool   `long:"s3-use-ssl" env:"S3_USE_SSL" description:"Use SSL for S3 connections"`
	} `group:"S3 Storage Options"`

	// Redis config
	Redis struct {
		Addr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
		Password string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
		DB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`
	} `group:"Redis Options"`
}

// relyingPartyFile is the shape of the optional --config YAML file. File
// values fill in relying-party settings that were not given explicitly;
// flags and environment variables take precedence.
type relyingPartyFile struct {
	RPDisplayName string `yaml:"rpDisplayName"`
	RPID          string `yaml:"rpId"`
	RPOrigin      string `yaml:"rpOrigin"`
}

// LoadConfig parses configuration from environment variables and command
// line flags, with the YAML config file filling defaults underneath.
func LoadConfig() (*Config, error) {
	config, err := loadConfigFrom(os.Args[1:])
	if err != nil && flags.WroteHelp(err) {
		os.Exit(0)
	}
	return config, err
}

func loadConfigFrom(args []string) (*Config, error) {
	var config Config

	parser := flags.NewParser(&config, flags.Default)
	parser.Usage = "[OPTIONS]"

	if _, err := parser.ParseArgs(args); err != nil {
		if flags.WroteHelp(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.ConfigFile != "" {
		data, err := os.ReadFile(config.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var file relyingPartyFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		// A file value applies only where neither a flag nor an env var
		// set the option explicitly.
		if file.RPDisplayName != "" && !optionSet(parser, "rp-name") {
			config.RPDisplayName = file.RPDisplayName
		}
		if file.RPID != "" && !optionSet(parser, "rp-id") {
			config.RPID = file.RPID
		}
		if file.RPOrigin != "" && !optionSet(parser, "rp-origin") {
			config.RPOrigin = file.RPOrigin
		}
	}

	return &config, nil
}

// optionSet reports whether the named long option was set explicitly, by
// flag or by environment variable, rather than left at its default.
func optionSet(parser *flags.Parser, long string) bool {
	opt := parser.FindOptionByLongName(long)
	return opt != nil && opt.IsSet() && !opt.IsSetDefault()
}
