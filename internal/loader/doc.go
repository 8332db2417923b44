// Package loader buffers statistic values and commits them as one batch.
//
// A Loader belongs to one owner (a calculator or importer). Entries are
// validated when added, names are registered through a shared Registry
// when the batch is loaded, and the whole batch lives inside the caller's
// store transaction, so a failure anywhere rolls every row back.
//
// The loader also reports coverage: for each statistic, the percentage of
// reference timestamps at which it has a value.
package loader
