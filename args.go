package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gavel/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")

	// engine config
	pflag.String("owner", "", "initial contract owner address")
	pflag.String("engine-address", "", "the engine's own custody address")
	pflag.Uint64("min-auction-duration", 60, "minimum auction duration in seconds")

	// custody config
	pflag.String("custody-endpoint", "", "base url of the asset custody service")
	pflag.Duration("custody-timeout", 10*time.Second, "")

	// auth config
	pflag.String("auth-public-key", "", "base64 encoded ed25519 public key for caller tokens")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "gavel:", "")
	pflag.String("redis-event-stream", "gavel-engine-events", "")
	pflag.Duration("redis-lock-expiry", 8*time.Second, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("GAVEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL:     viper.GetString("server-url"),
		AuthPublicKey: viper.GetString("auth-public-key"),
		ServerConfig: api.ServerConfig{
			Engine: api.EngineConfig{
				Owner:              viper.GetString("owner"),
				EngineAddress:      viper.GetString("engine-address"),
				MinAuctionDuration: viper.GetUint64("min-auction-duration"),
			},
			Custody: api.CustodyConfig{
				Endpoint: viper.GetString("custody-endpoint"),
				Timeout:  viper.GetDuration("custody-timeout"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:        viper.GetString("redis-addr"),
				Password:    viper.GetString("redis-password"),
				DB:          viper.GetInt("redis-db"),
				KeyPrefix:   viper.GetString("redis-key-prefix"),
				EventStream: viper.GetString("redis-event-stream"),
				LockExpiry:  viper.GetDuration("redis-lock-expiry"),
			},
		},
	}
}

type Args struct {
	ServerURL     string
	AuthPublicKey string
	ServerConfig  api.ServerConfig
}

// Validate 檢查必要參數並解碼驗證金鑰
func (args *Args) Validate() error {
	if args.ServerURL == "" {
		return errors.New("server-url is required")
	}
	if args.ServerConfig.Engine.Owner == "" {
		return errors.New("owner is required")
	}
	if args.ServerConfig.Engine.EngineAddress == "" {
		return errors.New("engine-address is required")
	}
	if args.ServerConfig.Custody.Endpoint == "" {
		return errors.New("custody-endpoint is required")
	}
	if args.AuthPublicKey == "" {
		return errors.New("auth-public-key is required")
	}
	key, err := base64.StdEncoding.DecodeString(args.AuthPublicKey)
	if err != nil {
		return fmt.Errorf("auth-public-key is not valid base64: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("auth-public-key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	args.ServerConfig.Auth.PublicKey = ed25519.PublicKey(key)
	return nil
}
