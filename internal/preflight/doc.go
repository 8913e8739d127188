// Package preflight provides readiness checks for the external programs and
// filesystem paths clipstitch depends on.
//
// The run command calls RequireTools before touching the task list so a
// missing ffmpeg fails fast, and "clipstitch status" displays every check.
package preflight
