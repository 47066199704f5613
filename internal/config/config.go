package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// EnvAPITimeout configures the HTTP timeout used for manifest and package fetches.
	EnvAPITimeout = "ROOTSTRAP_API_TIMEOUT"

	// EnvMaxParallelDownloads configures the Downloader's worker pool size.
	EnvMaxParallelDownloads = "ROOTSTRAP_MAX_PARALLEL_DOWNLOADS"

	// EnvRetryMaxAttempts configures how many attempts the retry policy makes
	// before giving up on a transient network error.
	EnvRetryMaxAttempts = "ROOTSTRAP_RETRY_MAX_ATTEMPTS"

	// DefaultAPITimeout is the default timeout for a single HTTP request.
	DefaultAPITimeout = 30 * time.Second

	// DefaultMaxParallelDownloads is the default Downloader worker pool size.
	DefaultMaxParallelDownloads = 8

	// DefaultRetryMaxAttempts is the default number of attempts the retry
	// policy makes for a transient network error.
	DefaultRetryMaxAttempts = 3
)

// GetAPITimeout returns the configured HTTP timeout from ROOTSTRAP_API_TIMEOUT.
// If not set or invalid, returns DefaultAPITimeout. Accepts duration strings
// like "30s", "1m", "2m30s".
func GetAPITimeout() time.Duration {
	envValue := os.Getenv(EnvAPITimeout)
	if envValue == "" {
		return DefaultAPITimeout
	}

	duration, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvAPITimeout, envValue, DefaultAPITimeout)
		return DefaultAPITimeout
	}

	if duration < 1*time.Second {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum 1s\n",
			EnvAPITimeout, duration)
		return 1 * time.Second
	}
	if duration > 10*time.Minute {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum 10m\n",
			EnvAPITimeout, duration)
		return 10 * time.Minute
	}

	return duration
}

// GetMaxParallelDownloads returns the configured Downloader worker pool size
// from ROOTSTRAP_MAX_PARALLEL_DOWNLOADS. If not set or invalid, returns
// DefaultMaxParallelDownloads.
func GetMaxParallelDownloads() int {
	envValue := os.Getenv(EnvMaxParallelDownloads)
	if envValue == "" {
		return DefaultMaxParallelDownloads
	}

	n, err := strconv.Atoi(envValue)
	if err != nil || n < 1 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n",
			EnvMaxParallelDownloads, envValue, DefaultMaxParallelDownloads)
		return DefaultMaxParallelDownloads
	}
	if n > 64 {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d), using maximum 64\n",
			EnvMaxParallelDownloads, n)
		return 64
	}

	return n
}

// GetRetryMaxAttempts returns the configured retry attempt count from
// ROOTSTRAP_RETRY_MAX_ATTEMPTS. If not set or invalid, returns
// DefaultRetryMaxAttempts. The value is clamped to a minimum of 3 per the
// Downloader's bounded retry contract.
func GetRetryMaxAttempts() int {
	envValue := os.Getenv(EnvRetryMaxAttempts)
	if envValue == "" {
		return DefaultRetryMaxAttempts
	}

	n, err := strconv.Atoi(envValue)
	if err != nil || n < DefaultRetryMaxAttempts {
		if err == nil {
			fmt.Fprintf(os.Stderr, "Warning: %s too low (%d), using minimum %d\n",
				EnvRetryMaxAttempts, n, DefaultRetryMaxAttempts)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n",
				EnvRetryMaxAttempts, envValue, DefaultRetryMaxAttempts)
		}
		return DefaultRetryMaxAttempts
	}

	return n
}

// BootstrapConfig is the parsed contents of the --config file: the two
// package-name sets the core consumes, per spec.md §3 and §6.2. Schema is
// TOML; only StubPackages and BasePackages are read.
type BootstrapConfig struct {
	StubPackages []string `toml:"stub_packages"`
	BasePackages []string `toml:"base_packages"`
}

// LoadBootstrapConfig reads and parses a BootstrapConfig from path.
func LoadBootstrapConfig(path string) (*BootstrapConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg BootstrapConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if len(cfg.StubPackages) == 0 {
		return nil, fmt.Errorf("config %s: stub_packages must not be empty", path)
	}

	return &cfg, nil
}

// CollectPackagesFromLists reads one package name per line from each path in
// paths, skipping blank lines and lines beginning with "#" (after trimming
// whitespace), and returns the trimmed entries in source order across all
// files. This mirrors the reference implementation's collect_packages_from_lists
// exactly, including its round-trip property: a file containing only
// already-trimmed, non-comment, non-blank lines maps to the identity.
func CollectPackagesFromLists(paths []string) ([]string, error) {
	var packages []string

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read include file %s: %w", path, err)
		}

		for _, line := range strings.Split(string(data), "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			packages = append(packages, trimmed)
		}
	}

	return packages, nil
}
