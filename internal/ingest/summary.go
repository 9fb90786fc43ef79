package ingest

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// Summarize renders the aggregate outcome of a batch for users.
func Summarize(s entity.BatchStats) string {
	if s.Total == 0 {
		return "No files were submitted."
	}

	var parts []string
	if s.Successful > 0 {
		parts = append(parts, plural(s.Successful, "new resume", "new resumes")+" uploaded")
	}
	if s.Updated > 0 {
		parts = append(parts, plural(s.Updated, "existing candidate", "existing candidates")+" updated")
	}
	if s.Failed > 0 {
		parts = append(parts, plural(s.Failed, "file", "files")+" failed")
	}
	if s.Retrying > 0 {
		parts = append(parts, plural(s.Retrying, "server-side retry", "server-side retries"))
	}
	detail := strings.Join(parts, ", ")

	if s.Stage == constants.StageError {
		msg := fmt.Sprintf("Processing stopped after %d of %d files", s.Completed, s.Total)
		if detail != "" {
			msg += ": " + detail
		}
		return msg + "."
	}
	if detail == "" {
		detail = "nothing to report"
	}
	msg := fmt.Sprintf("Processed %s: %s.", plural(s.Total, "file", "files"), detail)
	if s.Failed > 0 {
		msg += " See the failure list to retry."
	}
	return msg
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
