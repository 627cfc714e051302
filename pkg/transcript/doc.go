// Package transcript reads and rewrites Claude Code session transcripts:
// newline-delimited JSON records, one per line.
//
// Records are handled as raw bytes. Fields are read with gjson and edited
// in place with sjson, so anything this package does not understand
// (unknown fields, key order, formatting of untouched lines) survives a
// rewrite byte for byte. Malformed lines are never fatal: extraction skips
// them and rewrites copy them through verbatim.
package transcript
