// Package journal records run history in SQLite.
//
// Each pipeline run is a row in runs, and every request's terminal state is
// a row in outcomes. The journal is diagnostic only: nothing in the pipeline
// reads it back, and a run succeeds even when the journal cannot be written.
package journal
