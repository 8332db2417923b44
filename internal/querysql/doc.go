// Package querysql compiles series queries over the statistic journal to
// parameterized SQLite SQL.
//
// A series read joins statistic_journal to statistic_name and LEFT JOINs
// the four value tables, so one row carries whichever typed value exists.
// Values are never interpolated into the SQL text and every query ends in
// a total ORDER BY (time, then journal id) so reads are deterministic.
package querysql
