package scanner

import (
	"time"

	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
)

// Order is the ordering policy applied to ScanResult.Repositories.
type Order string

const (
	// OrderByName sorts ascending by name, then by path.
	OrderByName Order = "name"
	// OrderByRecency sorts newest LastModified first, ties by name.
	OrderByRecency Order = "recency"
)

// RepoMeta describes one repository found by a scan.
type RepoMeta struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	URL            string    `json:"url"`
	Branch         string    `json:"branch"`
	LastModified   time.Time `json:"lastModified"`
	LastCommitHash string    `json:"lastCommitHash,omitempty"`
}

// ScanError is a per-directory failure collected during a scan.
type ScanError struct {
	Path  string           `json:"path"`
	Code  errors.ErrorCode `json:"code"`
	Error string           `json:"error"`
}

// ScanResult is the aggregated report of one scan.
type ScanResult struct {
	Root         string        `json:"root"`
	Repositories []RepoMeta    `json:"repositories"`
	Skipped      []string      `json:"skipped"`
	Errors       []ScanError   `json:"errors"`
	Order        Order         `json:"order"`
	Duration     time.Duration `json:"duration"`
}

// SkippedCount returns the number of directories pruned by skip patterns
// or not followed because they are symlinks.
func (r *ScanResult) SkippedCount() int { return len(r.Skipped) }

// ErrorCount returns the number of directories that failed.
func (r *ScanResult) ErrorCount() int { return len(r.Errors) }

// Names returns the repository names in result order.
func (r *ScanResult) Names() []string {
	names := make([]string, 0, len(r.Repositories))
	for _, repo := range r.Repositories {
		names = append(names, repo.Name)
	}
	return names
}

// Options control a single scan. Zero values take the defaults.
type Options struct {
	MaxDepth     int
	Concurrency  int
	SkipPatterns []string
	Timeout      time.Duration
	Order        Order
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxDepth:     config.DefaultMaxDepth,
		Concurrency:  config.DefaultConcurrency,
		SkipPatterns: append([]string(nil), config.DefaultSkipPatterns...),
		Timeout:      config.DefaultScanTimeout,
		Order:        OrderByName,
	}
}

// OptionsFromConfig builds scan options from the scanner config section.
func OptionsFromConfig(cfg config.ScannerConfig) Options {
	return Options{
		MaxDepth:     cfg.MaxDepth,
		Concurrency:  cfg.Concurrency,
		SkipPatterns: cfg.SkipPatterns,
		Timeout:      config.Duration(cfg.Timeout, config.DefaultScanTimeout),
		Order:        Order(cfg.Order),
	}.WithDefaults()
}

// WithDefaults returns o with every zero field set to its default.
func (o Options) WithDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = config.DefaultMaxDepth
	}
	if o.Concurrency <= 0 {
		o.Concurrency = config.DefaultConcurrency
	}
	if o.SkipPatterns == nil {
		o.SkipPatterns = append([]string(nil), config.DefaultSkipPatterns...)
	}
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultScanTimeout
	}
	if o.Order != OrderByRecency {
		o.Order = OrderByName
	}
	return o
}
