// Package config loads the CUE configuration: how activity records map to
// statistics, how sports map to activity groups, and the calculator
// parameters.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/stoats/internal/engine"
	"github.com/roach88/stoats/internal/ir"
)

//go:embed default.cue
var defaultCUE []byte

// Config is the decoded configuration.
type Config struct {
	ActivityOwner string            `json:"activity_owner"`
	Records       map[string]Record `json:"records"`
	Groups        Groups            `json:"groups"`
	Impulse       Impulse           `json:"impulse"`
	Responses     []Response        `json:"responses"`
	RestHR        RestHR            `json:"rest_hr"`
}

// Record maps one record field to a statistic.
type Record struct {
	Title string `json:"title"`
	Units string `json:"units"`
	Type  string `json:"type"`
}

// JournalType returns the statistic type for the record.
func (r Record) JournalType() (ir.JournalType, error) {
	return ir.ParseJournalType(r.Type)
}

// Groups resolves a sport (and any defines) to an activity group.
type Groups struct {
	Default string                       `json:"default"`
	Sports  map[string]string            `json:"sports"`
	Define  map[string]map[string]string `json:"define"`
}

// Impulse holds heart-rate impulse parameters.
type Impulse struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Gamma  float64 `json:"gamma"`
	MaxGap int     `json:"max_gap"` // seconds
}

// Response is one decaying response series.
type Response struct {
	Title   string  `json:"title"`
	TauDays float64 `json:"tau_days"`
	Start   float64 `json:"start"`
	Scale   float64 `json:"scale"`
}

// RestHR configures the rest heart rate calculator.
type RestHR struct {
	Schedule string `json:"schedule"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return Parse(nil, "")
}

// Load unifies the file at path with the embedded defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse unifies user CUE source with the embedded defaults and decodes
// the result. filename is used in error positions.
func Parse(user []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	v := ctx.CompileBytes(defaultCUE, cue.Filename("default.cue"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if len(user) > 0 {
		u := ctx.CompileBytes(user, cue.Filename(filename))
		if err := u.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		v = v.Unify(u)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if err := cfg.validate(v); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate(v cue.Value) error {
	impulse := v.LookupPath(cue.ParsePath("impulse"))
	if c.Impulse.Upper <= c.Impulse.Lower {
		return &Error{
			Field:   "impulse",
			Message: fmt.Sprintf("upper (%g) must exceed lower (%g)", c.Impulse.Upper, c.Impulse.Lower),
			Pos:     impulse.Pos(),
		}
	}

	if _, err := ir.ParseSchedule(c.RestHR.Schedule); err != nil {
		return &Error{
			Field:   "rest_hr.schedule",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("rest_hr.schedule")).Pos(),
		}
	}

	seen := make(map[string]bool)
	for _, r := range c.Responses {
		name := ir.CanonicalName(r.Title)
		if seen[name] {
			return &Error{
				Field:   "responses",
				Message: fmt.Sprintf("duplicate response %q", r.Title),
				Pos:     v.LookupPath(cue.ParsePath("responses")).Pos(),
			}
		}
		seen[name] = true
	}
	return nil
}

// ImpulseParams converts the impulse section for the engine.
func (c *Config) ImpulseParams() engine.ImpulseParams {
	return engine.ImpulseParams{
		Lower:  c.Impulse.Lower,
		Upper:  c.Impulse.Upper,
		Gamma:  c.Impulse.Gamma,
		MaxGap: time.Duration(c.Impulse.MaxGap) * time.Second,
	}
}

// EngineResponses converts the responses section for the engine.
func (c *Config) EngineResponses() []engine.Response {
	out := make([]engine.Response, len(c.Responses))
	for i, r := range c.Responses {
		out[i] = engine.Response{Title: r.Title, TauDays: r.TauDays, Start: r.Start, Scale: r.Scale}
	}
	return out
}

// RestHRSchedule returns the parsed rest HR schedule.
func (c *Config) RestHRSchedule() ir.Schedule {
	sch, err := ir.ParseSchedule(c.RestHR.Schedule)
	if err != nil {
		return ir.Daily
	}
	return sch
}

// Fields returns the record field names in sorted order.
func (c *Config) Fields() []string {
	fields := make([]string, 0, len(c.Records))
	for f := range c.Records {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// ActivityGroup resolves sport to a group.
//
// The sport rule wins. Otherwise defines are tried in key order; a
// define value may list several comma-separated candidates. The default
// applies last. No match is an error.
func (g Groups) ActivityGroup(sport string, define map[string]string) (string, error) {
	sport = strings.ToLower(strings.TrimSpace(sport))
	if group, ok := g.Sports[sport]; ok {
		return group, nil
	}

	keys := make([]string, 0, len(define))
	for k := range define {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lookup, ok := g.Define[key]
		if !ok {
			continue
		}
		for _, value := range strings.Split(define[key], ",") {
			if group, ok := lookup[strings.TrimSpace(value)]; ok {
				return group, nil
			}
		}
	}

	if g.Default != "" {
		return g.Default, nil
	}
	return "", fmt.Errorf("no activity group configured for sport %q", sport)
}
