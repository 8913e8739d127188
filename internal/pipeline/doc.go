// Package pipeline drives one clipstitch run: every segment request is
// validated, resolved, fetched when missing, and cut in request order, then
// the produced clips are merged once into the output file.
//
// Per-request failures never abort a run. They become skipped outcomes with a
// reason, and the run carries on with the next request. Only a merge failure,
// a scratch lock conflict, or cancellation is a run-level error.
package pipeline
