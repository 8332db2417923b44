// Package engine runs the calculators that derive statistics from stored
// data and keep their provenance consistent.
//
// Two calculator shapes exist:
//
// Interval calculators (IntervalCalculator) produce at most one output per
// calendar window. Each window is its own transaction: the window's
// interval source is created together with its output rows, and a window
// that already has output is skipped unless forced. RestHR is the
// canonical example.
//
// Response calculators (ResponseCalculator) produce a continuous hourly
// series from many activities. Their provenance is a chain of composites,
// one per change of contributing activity. The completeness oracle decides
// whether the stored chain still covers every activity and is recent; if
// not, the chain and its outputs are discarded and rebuilt in a single
// transaction.
//
// ImpulseCalculator sits between the two, deriving a per-activity impulse
// series that response calculators consume.
//
// The Scheduler runs calculators on a bounded worker pool. Jobs for the
// same owner are serialized by an owner lock; different owners proceed in
// parallel. Every run gets a time-ordered run ID that appears on all of
// its log lines.
//
// CRITICAL PATTERNS:
//
// All reads that feed a calculation are ordered (time, journal id), so the
// same store contents always produce the same outputs and the same chain.
//
// Per-interval failures are logged and the sweep continues. Store
// integrity failures (provenance violations) abort the transaction and
// propagate.
package engine
