// Package main hosts the clipstitch CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration (and an optional .env file),
// assembles the fetch, cut and merge stages, and renders run reports, cache
// listings and run history. Behaviour lives in the internal packages; commands
// here only translate flags and format output.
package main
