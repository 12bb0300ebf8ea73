package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load env from .env
	godotenv.Load()
}

// SmartsheetToken is required at startup; the service cannot reach either the
// config sheet or any destination sheet without it.
func SmartsheetToken() string {
	return strings.TrimSpace(os.Getenv("SMARTSHEET_TOKEN"))
}

// ConfigSheetID identifies the sheet holding one account row per Bind company.
func ConfigSheetID() int64 {
	v := strings.TrimSpace(os.Getenv("SMARTSHEET_CONFIG_ID"))
	if v == "" {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// BindTimeout bounds every single Bind API call.
func BindTimeout() time.Duration {
	return time.Duration(intFromEnv("BIND_TIMEOUT", 30)) * time.Second
}

// BindFetchConcurrency caps the fan-out of concurrent per-account fetches.
func BindFetchConcurrency() int {
	n := intFromEnv("BIND_FETCH_CONCURRENCY", 8)
	if n < 1 {
		n = 1
	}
	return n
}

// JobEnabled gates the background scheduler.
//
// Set via env:
// - HABILITAR_JOB="0|false|no" to disable (default enabled)
func JobEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("HABILITAR_JOB")))
	switch v {
	case "0", "false", "no":
		return false
	default:
		return true
	}
}

// JobTickInterval is the scheduler wake-up period.
func JobTickInterval() time.Duration {
	return time.Duration(intFromEnv("JOB_TICK_SECONDS", 60)) * time.Second
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
