package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Typed lookups with defaults.  Unparseable values fall back to the default.

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

// required accumulates the names of missing or malformed variables so that
// Load can report all of them at once instead of stopping at the first.
type required struct {
	problems []string
}

func (r *required) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		r.problems = append(r.problems, "missing "+key)
	}
	return v
}

func (r *required) mustInt(key string) int {
	s := r.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.problems = append(r.problems, "invalid int for "+key+": "+strconv.Quote(s))
	}
	return n
}
