// Package sourcecache is the content-addressed store of downloaded source
// videos.
//
// Entries live at <cache_dir>/<id>.<ext> next to a <id>.json metadata sidecar.
// Downloads are staged under .incoming/<id>/ and renamed into place, so a file
// at the canonical path is always complete. Nothing here evicts entries; the
// only deletion path is an explicit Remove.
package sourcecache
