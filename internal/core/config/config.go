package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr               string
	LogLevel           string
	LogConsole         bool
	WFSBaseURL         string
	WFSPageSize        int
	MaxBodyBytes       int64
	TransformCacheSize int
	HexResMin          int
	HexResMax          int
	HexResDefault      int
	ShutdownTimeout    time.Duration
}

func FromEnv() Config {
	res := getint("HEX_RES", 8)
	minRes := getint("HEX_RES_MIN", 0)
	maxRes := getint("HEX_RES_MAX", 15)

	if minRes < 0 {
		minRes = 0
	}
	if maxRes > 15 {
		maxRes = 15
	}
	if minRes > maxRes {
		minRes, maxRes = 0, 15
	}
	if res < minRes || res > maxRes {
		res = minRes
	}

	return Config{
		Addr:               getenv("ADDR", ":8090"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogConsole:         getbool("LOG_CONSOLE", false),
		WFSBaseURL:         getenv("WFS_BASE_URL", "http://localhost:8080/geoserver"),
		WFSPageSize:        getint("WFS_PAGE_SIZE", 0),
		MaxBodyBytes:       getint64("MAX_BODY_BYTES", 32<<20),
		TransformCacheSize: getint("TRANSFORM_CACHE_SIZE", 64),
		HexResMin:          minRes,
		HexResMax:          maxRes,
		HexResDefault:      res,
		ShutdownTimeout:    getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
