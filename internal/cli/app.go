package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/stoats/internal/config"
	"github.com/roach88/stoats/internal/kit"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/metrics"
	"github.com/roach88/stoats/internal/store"
)

// Error codes used in JSON error responses.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeNotFound        = "E002" // Source, name or path not found
	ErrCodeConfig          = "E003" // Configuration error
	ErrCodeImport          = "E004" // Import failed
	ErrCodeCalculation     = "E005" // Calculator job failed
	ErrCodeProvenance      = "E006" // Provenance invariant violated
	ErrCodeIncompleteChain = "E007" // Response outputs need a rebuild
	ErrCodeScenarioFailed  = "E008" // One or more scenarios failed
)

// app holds the components shared by data commands.
type app struct {
	opts     *RootOptions
	store    *store.Store
	config   *config.Config
	registry *loader.Registry
	metrics  *metrics.PrometheusCollector
	kit      *kit.Manager
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	registry := loader.NewRegistry()
	return &app{
		opts:     opts,
		store:    st,
		config:   cfg,
		registry: registry,
		metrics:  metrics.NewCollector(),
		kit:      kit.NewManager(registry),
	}, nil
}

// Close writes the metrics textfile, when requested, and closes the store.
func (a *app) Close() error {
	var errs []error
	if a.opts.Metrics != "" {
		if err := prometheus.WriteToTextfile(a.opts.Metrics, a.metrics.Registry()); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    a.opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   a.opts.Verbose,
	}
}

// withApp opens the app for fn and closes it afterwards, keeping fn's
// error when both fail.
func withApp(opts *RootOptions, fn func(a *app) error) (err error) {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close", cerr)
		}
	}()
	return fn(a)
}

// parseTime accepts a date (2006-01-02) or an RFC 3339 timestamp. Empty
// input gives the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}
