package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/roach88/stoats/internal/config"
	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/kit"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/metrics"
	"github.com/roach88/stoats/internal/store"
)

// ErrAlreadyImported is returned when a file with the same hash exists and
// the import is not forced.
var ErrAlreadyImported = errors.New("activity already imported")

// ErrNoRecords is returned for a file without any data record.
var ErrNoRecords = errors.New("no data records")

// DefineKit names the define that links an activity to a kit item.
const DefineKit = "kit"

// Import statuses recorded in metrics.
const (
	StatusOK       = "ok"
	StatusSkipped  = "skipped"
	StatusReplaced = "replaced"
	StatusFailed   = "failed"
)

// Request describes one import.
type Request struct {
	// Hash identifies the file; see ir.RecordsHash.
	Hash    string
	Records iter.Seq2[Record, error]
	// Define holds user attributes stored as text statistics. They also
	// take part in activity group resolution.
	Define map[string]string
	Force  bool
}

// Result summarizes one import.
type Result struct {
	Activity ir.SourceID
	Group    string
	Sport    string
	Start    time.Time
	Finish   time.Time
	Records  int
	Written  int
	Skipped  int
	Coverage []loader.Coverage
	Replaced bool
	KitUsed  int
}

// Importer loads activity files into the store.
type Importer struct {
	store    *store.Store
	config   *config.Config
	registry *loader.Registry
	kit      *kit.Manager
	metrics  metrics.Collector
}

// Option configures an Importer.
type Option func(*Importer)

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(im *Importer) {
		im.metrics = m
	}
}

// WithKit enables the kit define. Without it the define is stored as
// text only.
func WithKit(m *kit.Manager) Option {
	return func(im *Importer) {
		im.kit = m
	}
}

// NewImporter creates an importer. A nil registry gets a private one.
func NewImporter(s *store.Store, cfg *config.Config, registry *loader.Registry, opts ...Option) *Importer {
	if registry == nil {
		registry = loader.NewRegistry()
	}
	im := &Importer{
		store:    s,
		config:   cfg,
		registry: registry,
		metrics:  metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile imports a JSON-lines activity file.
func (im *Importer) ImportFile(ctx context.Context, path string, define map[string]string, force bool) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("import %s: %w", path, err)
	}
	result, err := im.Import(ctx, Request{
		Hash:    ir.RecordsHash(data),
		Records: ReadRecords(bytes.NewReader(data)),
		Define:  define,
		Force:   force,
	})
	if err != nil {
		return result, fmt.Errorf("import %s: %w", path, err)
	}
	return result, nil
}

// Import creates the activity source and loads its statistics in one
// transaction.
func (im *Importer) Import(ctx context.Context, req Request) (Result, error) {
	result, err := im.importRecords(ctx, req)
	switch {
	case errors.Is(err, ErrAlreadyImported):
		im.metrics.RecordImport(ctx, StatusSkipped)
	case err != nil:
		im.metrics.RecordImport(ctx, StatusFailed)
	case result.Replaced:
		im.metrics.RecordImport(ctx, StatusReplaced)
	default:
		im.metrics.RecordImport(ctx, StatusOK)
	}
	return result, err
}

func (im *Importer) importRecords(ctx context.Context, req Request) (Result, error) {
	var result Result
	if req.Hash == "" {
		return result, fmt.Errorf("import: missing file hash")
	}

	var data []Record
	for rec, err := range req.Records {
		if err != nil {
			return result, err
		}
		if sport, ok := rec.Sport(); ok && result.Sport == "" {
			result.Sport = sport
		}
		if rec.Name != RecordData || rec.Time.IsZero() {
			continue
		}
		data = append(data, rec)
	}
	if len(data) == 0 {
		return result, ErrNoRecords
	}
	sort.SliceStable(data, func(i, j int) bool { return data[i].Time.Before(data[j].Time) })
	result.Records = len(data)
	result.Start, result.Finish = data[0].Time, data[len(data)-1].Time

	group, err := im.config.Groups.ActivityGroup(result.Sport, req.Define)
	if err != nil {
		return result, err
	}
	result.Group = group

	err = im.store.Update(ctx, func(tx *store.Tx) error {
		replaced, err := im.replace(ctx, tx, req)
		if err != nil {
			return err
		}
		result.Replaced = replaced

		id, err := tx.CreateActivity(ctx, ir.Activity{
			Group:    group,
			Start:    result.Start,
			Finish:   result.Finish,
			FileHash: req.Hash,
		})
		if err != nil {
			return err
		}
		result.Activity = id

		l := loader.New(im.config.ActivityOwner, im.registry, loader.WithDuplicatePolicy(loader.Skip))
		if err := im.addFields(l, id, group, data); err != nil {
			return err
		}
		result.Coverage = l.Coverage()
		if err := l.AddAll(l.CoverageEntries(id, result.Start)); err != nil {
			return err
		}
		if err := l.AddAll(defineEntries(id, group, result.Start, req.Define)); err != nil {
			return err
		}
		loaded, err := l.Load(ctx, tx)
		if err != nil {
			return err
		}
		result.Written, result.Skipped = loaded.Written, loaded.Skipped

		if item := req.Define[DefineKit]; item != "" && im.kit != nil {
			n, err := im.kit.Use(ctx, tx, id, item, result.Start)
			if err != nil {
				return fmt.Errorf("kit %s: %w", item, err)
			}
			result.KitUsed = n
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, c := range result.Coverage {
		im.metrics.SetCoverage(ctx, im.config.ActivityOwner, c.Name, c.Percent)
		slog.Debug("coverage", "activity", result.Activity, "name", c.Name, "percent", c.Percent)
	}
	slog.Info("imported activity",
		"activity", result.Activity,
		"group", result.Group,
		"sport", result.Sport,
		"records", result.Records,
		"written", result.Written,
		"skipped", result.Skipped,
		"replaced", result.Replaced,
	)
	return result, nil
}

// replace removes a previous import of the same file when forced.
func (im *Importer) replace(ctx context.Context, tx *store.Tx, req Request) (bool, error) {
	old, err := tx.ActivityByHash(ctx, req.Hash)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !req.Force {
		return false, fmt.Errorf("%w: source %d", ErrAlreadyImported, old.ID)
	}
	if err := tx.DeleteSource(ctx, old.ID); err != nil {
		return false, err
	}
	removed, err := tx.CleanComposites(ctx)
	if err != nil {
		return false, err
	}
	slog.Info("replacing activity", "source", old.ID, "composites_removed", removed)
	return true, nil
}

func (im *Importer) addFields(l *loader.Loader, id ir.SourceID, group string, data []Record) error {
	for _, field := range im.config.Fields() {
		spec := im.config.Records[field]
		typ, err := spec.JournalType()
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		for _, rec := range data {
			raw, ok := rec.Fields[field]
			if !ok || raw == nil {
				continue
			}
			v, err := convert(raw, typ)
			if err != nil {
				return fmt.Errorf("field %s at %s: %w", field, rec.Time.Format(time.RFC3339), err)
			}
			err = l.Add(loader.Entry{
				Name:   spec.Title,
				Units:  spec.Units,
				Group:  group,
				Source: id,
				Value:  v,
				Time:   rec.Time,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func defineEntries(id ir.SourceID, group string, at time.Time, define map[string]string) []loader.Entry {
	keys := make([]string, 0, len(define))
	for k := range define {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]loader.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, loader.Entry{
			Name:        k,
			Description: "Defined on import.",
			Group:       group,
			Source:      id,
			Value:       ir.TextValue(define[k]),
			Time:        at,
		})
	}
	return entries
}

// convert turns a decoded value into a typed statistic value. Numbers
// arrive as json.Number from files and as Go numbers from scenarios.
func convert(raw any, typ ir.JournalType) (ir.Value, error) {
	switch typ {
	case ir.JournalInteger:
		if v, ok := raw.(json.Number); ok {
			if n, err := v.Int64(); err == nil {
				return ir.IntValue(n), nil
			}
		}
		if f, ok, err := number(raw); ok {
			return ir.IntValue(int64(f)), err
		}
	case ir.JournalFloat:
		if f, ok, err := number(raw); ok {
			return ir.FloatValue(f), err
		}
	case ir.JournalText:
		switch v := raw.(type) {
		case string:
			return ir.TextValue(v), nil
		case json.Number:
			return ir.TextValue(v.String()), nil
		}
	case ir.JournalTimestamp:
		switch v := raw.(type) {
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return ir.Value{}, err
			}
			return ir.TimestampValue(t), nil
		case time.Time:
			return ir.TimestampValue(v), nil
		}
		if f, ok, err := number(raw); ok {
			return ir.TimestampValue(time.Unix(int64(f), 0)), err
		}
	}
	return ir.Value{}, fmt.Errorf("cannot store %T as %s", raw, typ)
}

func number(raw any) (float64, bool, error) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, true, err
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	}
	return 0, false, nil
}
