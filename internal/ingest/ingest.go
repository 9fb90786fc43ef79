package ingest

// FileResult is the per-file collection outcome.
type FileResult struct {
	Path         string `json:"path"`
	HashHex      string `json:"hash,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Err          string `json:"error,omitempty"`
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Collected    uint32 `json:"collected"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}
