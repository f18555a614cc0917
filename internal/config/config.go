package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// DefaultEnvFile は作業ディレクトリから読み込む任意の設定ファイル。
const DefaultEnvFile = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBQueryTimeout    time.Duration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Session
	SessionMaxAge time.Duration
	BcryptCost    int

	// Server
	Port string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// デフォルト値
const (
	defaultPort              = "5000"
	defaultCORSAllowedOrigin = "http://localhost:3000"
	defaultSessionMaxAge     = 7 * 24 * time.Hour
	defaultBcryptCost        = 10
	defaultDBQueryTimeout    = 5 * time.Second
	defaultDBMaxOpenConns    = 10
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = 30 * time.Minute
	defaultLogLevel          = "info"
)

// Load は環境変数と作業ディレクトリの.envファイルからConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadFrom(DefaultEnvFile)
}

// LoadFrom は指定された.envファイルと環境変数からConfigを読み込む。
// ファイルが存在しない場合は環境変数のみを使用する。同じキーは環境変数を優先する。
func LoadFrom(envFile string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if err := readEnvFile(v, envFile); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:       v.GetString("database_url"),
		Port:              v.GetString("port"),
		CORSAllowedOrigin: v.GetString("cors_allowed_origin"),
		LogLevel:          v.GetString("log_level"),

		SessionMaxAge:     positiveDuration(v, "session_max_age", defaultSessionMaxAge),
		DBQueryTimeout:    positiveDuration(v, "db_query_timeout", defaultDBQueryTimeout),
		DBConnMaxLifetime: positiveDuration(v, "db_conn_max_lifetime", defaultDBConnMaxLifetime),

		BcryptCost:     positiveInt(v, "bcrypt_cost", defaultBcryptCost),
		DBMaxOpenConns: positiveInt(v, "db_max_open_conns", defaultDBMaxOpenConns),
		DBMaxIdleConns: positiveInt(v, "db_max_idle_conns", defaultDBMaxIdleConns),
	}

	// Required fields
	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

// LoadPort は環境変数と.envファイルからPORTだけを読み込む。
// DATABASE_URLなどの必須項目は検証しない。読み込みに失敗した場合はデフォルトポートを返す。
func LoadPort(envFile string) string {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", defaultPort)

	if err := readEnvFile(v, envFile); err != nil {
		return defaultPort
	}
	return v.GetString("port")
}

// readEnvFile は.envファイルをviperに読み込む。ファイルが存在しない場合は何もしない。
func readEnvFile(v *viper.Viper, envFile string) error {
	if envFile == "" {
		return nil
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", envFile, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", defaultPort)
	v.SetDefault("cors_allowed_origin", defaultCORSAllowedOrigin)
	v.SetDefault("session_max_age", defaultSessionMaxAge)
	v.SetDefault("bcrypt_cost", defaultBcryptCost)
	v.SetDefault("db_query_timeout", defaultDBQueryTimeout)
	v.SetDefault("db_max_open_conns", defaultDBMaxOpenConns)
	v.SetDefault("db_max_idle_conns", defaultDBMaxIdleConns)
	v.SetDefault("db_conn_max_lifetime", defaultDBConnMaxLifetime)
	v.SetDefault("log_level", defaultLogLevel)
}

// positiveDuration は解析できない値や0以下の値をデフォルトに置き換える。
func positiveDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return defaultVal
}

// positiveInt は解析できない値や0以下の値をデフォルトに置き換える。
func positiveInt(v *viper.Viper, key string, defaultVal int) int {
	if i := v.GetInt(key); i > 0 {
		return i
	}
	return defaultVal
}
