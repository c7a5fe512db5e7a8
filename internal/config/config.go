package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 認証情報はコマンドライン引数が環境変数より優先される。
type Config struct {
	// Credentials
	WereadCookie     string
	NotionToken      string
	NotionDatabaseID string

	// Sync
	SyncMaxConcurrent int
	SyncLimit         int
	SyncInterval      time.Duration

	// Notion API
	NotionRequestsPerSecond int
	NotionMaxRetries        int
	NotionRetryBackoff      time.Duration

	// HTTP
	RequestTimeout time.Duration

	// Server (worker mode)
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// すべての項目は省略可能で、未設定の場合はデフォルト値を使用する。
// 認証情報の検証はValidateで行う。
func Load() *Config {
	cfg := &Config{}

	cfg.WereadCookie = os.Getenv("WEREAD_COOKIE")
	cfg.NotionToken = os.Getenv("NOTION_TOKEN")
	cfg.NotionDatabaseID = os.Getenv("NOTION_DATABASE_ID")

	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.SyncLimit = getEnvInt("SYNC_LIMIT", 0)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 6*time.Hour)
	cfg.NotionRequestsPerSecond = getEnvInt("NOTION_REQUESTS_PER_SECOND", 3)
	cfg.NotionMaxRetries = getEnvInt("NOTION_MAX_RETRIES", 3)
	cfg.NotionRetryBackoff = getEnvDuration("NOTION_RETRY_BACKOFF", 500*time.Millisecond)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg
}

// Validate は認証情報がすべて揃っているかを検証する。
// 未設定の項目がある場合はエラーを返す。
func (c *Config) Validate() error {
	var missing []string

	if c.WereadCookie == "" {
		missing = append(missing, "WEREAD_COOKIE")
	}
	if c.NotionToken == "" {
		missing = append(missing, "NOTION_TOKEN")
	}
	if c.NotionDatabaseID == "" {
		missing = append(missing, "NOTION_DATABASE_ID")
	}

	if len(missing) > 0 {
		return fmt.Errorf("required credentials are not set: %v", missing)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
