// Package harness runs end-to-end scenarios against a fresh store.
//
// A scenario imports synthetic or file-based activities, optionally sets
// up kit, runs calculators through the scheduler and then checks
// assertions against the resulting statistics and provenance chain.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: two-rides
//	description: "Two rides produce a three link chain"
//	now: 2024-03-05T09:00:00Z
//	config: |
//	  impulse: lower: 90
//	kit:
//	  - op: new
//	    group: bike
//	    item: cotic
//	    at: 2024-01-01T00:00:00Z
//	    force: true
//	imports:
//	  - hash: ride-1
//	    sport: cycling
//	    start: 2024-03-04T06:00:00Z
//	    step: 10s
//	    count: 30
//	    fields: {heart_rate: 145}
//	    define: {kit: cotic}
//	  - file: rides/morning.jsonl
//	calculate: [Impulse, Response]
//	assertions:
//	  - type: count
//	    name: HR Impulse 10
//	    owner: Impulse
//	    count: 30
//	  - type: value
//	    name: Fitness
//	    owner: Response
//	    at: 2024-03-04T07:00:00Z
//	    value: 12.5
//	    tolerance: 0.01
//	  - type: chain
//	    links: 2
//	  - type: complete
//	    complete: true
//
// Times are plain YAML timestamps. File paths are relative to the
// scenario file. An empty calculate list runs every calculator.
//
// # Assertion Types
//
//   - count: number of points for a statistic name and owner
//   - value: the value of a statistic at a time, within tolerance
//   - chain: number of distinct composites sourcing response outputs
//   - complete: the completeness oracle verdict after calculation
//
// # Golden Files
//
// RunWithGolden snapshots the response chain and per-statistic point
// counts as canonical JSON under testdata/golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
