// Package repovul defines the data model for the repovul dataset: a
// deduplicated corpus of repository revisions derived from OSV advisories,
// suitable for benchmarking vulnerability-detection tools.
//
// For every upstream repository, the conversion pipeline selects a minimum
// hitting set of affected versions covering all of the repository's
// advisories, and records a full language/size breakdown at each selected
// commit. The types in this package are the records that process emits and
// the downstream store persists.
package repovul

// VersionInfo is the git resolution of a single version string: the full
// commit hash and the commit's author timestamp (seconds since the epoch).
//
// A nil *VersionInfo denotes a version git could not resolve.
type VersionInfo struct {
	Commit string `json:"commit"`
	Date   int64  `json:"date"`
}
