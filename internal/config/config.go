package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Getenv источник переменных окружения, обычно os.Getenv
type Getenv func(key string) string

func envOr(getenv Getenv, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(getenv Getenv, key string) bool {
	v, err := strconv.ParseBool(getenv(key))
	return err == nil && v
}

func envDuration(getenv Getenv, key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getenv(key)); err == nil {
		return d
	}
	return fallback
}

func envInt(getenv Getenv, key string, fallback int) int {
	if n, err := strconv.Atoi(getenv(key)); err == nil {
		return n
	}
	return fallback
}

// parseSize разбирает размер вида "5MB" или "1048576"
func parseSize(name, value string) (int64, error) {
	size, err := units.FromHumanSize(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid -%s %q: %w", name, value, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("invalid -%s %q: must be positive", name, value)
	}
	return size, nil
}

// parseLimit как parseSize, но "0" или пустая строка снимают ограничение
func parseLimit(name, value string) (int64, error) {
	if v := strings.TrimSpace(value); v == "" || v == "0" {
		return 0, nil
	}
	return parseSize(name, value)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func defaultResumeDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".upload-resume.db"
	}
	return filepath.Join(home, ".upload-resume.db")
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}
