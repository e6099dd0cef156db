package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func GetEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}

	return defaultVal
}

func GetEnvAsInt(key string, defaultVal int) int {
	strVal := GetEnv(key, "")

	if val, err := strconv.Atoi(strVal); err == nil {
		return val
	}

	return defaultVal
}

func GetEnvAsInt64(key string, defaultVal int64) int64 {
	strVal := GetEnv(key, "")

	if val, err := strconv.ParseInt(strVal, 10, 64); err == nil {
		return val
	}

	return defaultVal
}

func GetEnvAsBool(key string, defaultVal bool) bool {
	strVal := GetEnv(key, "")

	if val, err := strconv.ParseBool(strVal); err == nil {
		return val
	}

	return defaultVal
}

func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}

	val, err := time.ParseDuration(strVal)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("value", strVal).Msg("Invalid duration in env, using default")
		return defaultVal
	}

	return val
}

// GetEnvAsStringArr reads a separated list, e.g. "a,b,c".
func GetEnvAsStringArr(key string, defaultVal []string, separator ...string) []string {
	strVal := GetEnv(key, "")

	if len(strVal) == 0 {
		return defaultVal
	}

	sep := ","
	if len(separator) >= 1 {
		sep = separator[0]
	}

	parts := strings.Split(strVal, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// GetEnvAsUint16Arr reads a separated list of party indices, e.g. "1,2".
func GetEnvAsUint16Arr(key string, defaultVal []uint16, separator ...string) []uint16 {
	parts := GetEnvAsStringArr(key, nil, separator...)
	if len(parts) == 0 {
		return defaultVal
	}

	out := make([]uint16, 0, len(parts))
	for _, p := range parts {
		val, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Str("value", p).Msg("Invalid uint16 list in env, using default")
			return defaultVal
		}
		out = append(out, uint16(val))
	}

	return out
}
