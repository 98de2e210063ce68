// Package config carries runtime settings for both binaries, read from the
// environment with CLI-flag overrides applied in the mains.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger is the configuration of the main-system service (ledgerd).
type Ledger struct {
	ListenAddress string
	MongoURI      string
	MongoDatabase string
	ChainBaseURL  string
	BankEndpoints []string
	KafkaBrokers  []string
	KafkaTopic    string
	RedisAddr     string
	LogLevel      string
	LogFile       string
}

// LoadLedger reads env vars and applies defaults.
func LoadLedger() Ledger {
	return Ledger{
		ListenAddress: envStr("LISTEN_ADDRESS", ":5000"),
		MongoURI:      envStr("MONGO_URI", ""),
		MongoDatabase: envStr("MONGO_DATABASE", "cedefi"),
		ChainBaseURL:  envStr("CHAIN_BASE_URL", "http://localhost:8545"),
		BankEndpoints: envList("BANK_ENDPOINTS", "http://localhost:3001,http://localhost:3002,http://localhost:3003"),
		KafkaBrokers:  envList("KAFKA_BROKERS", ""),
		KafkaTopic:    envStr("KAFKA_TOPIC", "transaction-outcomes"),
		RedisAddr:     envStr("REDIS_ADDR", ""),
		LogLevel:      envStr("LOG_LEVEL", "INFO"),
		LogFile:       envStr("LOG_FILE", ""),
	}
}

// Bank is the configuration of one bank service instance (bankd).
type Bank struct {
	ListenAddress   string
	BankID          string
	KeyFile         string
	MainSystemURL   string
	AmountLimit     float64
	TrustedNodes    []string
	MinTrustedVotes int
	PollInterval    time.Duration
	BalanceCeiling  float64
	LogLevel        string
	LogFile         string
}

// LoadBank reads env vars and applies defaults.
func LoadBank() Bank {
	return Bank{
		ListenAddress:   envStr("LISTEN_ADDRESS", ":3001"),
		BankID:          envStr("BANK_ID", "UnknownBank"),
		KeyFile:         envStr("BANK_KEY_FILE", ""),
		MainSystemURL:   envStr("MAIN_SYSTEM_URL", "http://localhost:5000"),
		AmountLimit:     envFloat("AMOUNT_LIMIT", 1_000_000),
		TrustedNodes:    envList("TRUSTED_NODES", ""),
		MinTrustedVotes: envInt("MIN_TRUSTED_VOTES", 0),
		PollInterval:    envDur("VALIDATOR_POLL_INTERVAL", 5*time.Second),
		BalanceCeiling:  envFloat("VALIDATOR_BALANCE_CEILING", 10_000),
		LogLevel:        envStr("LOG_LEVEL", "INFO"),
		LogFile:         envStr("LOG_FILE", ""),
	}
}

func envStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
