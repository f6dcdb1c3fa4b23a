package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	ScanPort               string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ScanPollMillis         int
	ScanDrainLimit         int
	CompanyCacheTTLSeconds int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	scanPoll, err := strconv.Atoi(getEnv("SCAN_POLL_MILLIS", "100"))
	if err != nil || scanPoll < 1 {
		scanPoll = 100
	}
	drainLimit, err := strconv.Atoi(getEnv("SCAN_DRAIN_LIMIT", "32"))
	if err != nil || drainLimit < 1 {
		drainLimit = 32
	}
	companyTTL, err := strconv.Atoi(getEnv("COMPANY_CACHE_TTL_SECONDS", "300"))
	if err != nil || companyTTL < 1 {
		companyTTL = 300
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8090"),
		ScanPort:               getEnv("SCAN_PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		ScanPollMillis:         scanPoll,
		ScanDrainLimit:         drainLimit,
		CompanyCacheTTLSeconds: companyTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// ScanAddress binds all interfaces so scanner devices on the LAN can reach
// the listener.
func (c Config) ScanAddress() string {
	return fmt.Sprintf("0.0.0.0:%s", c.ScanPort)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
