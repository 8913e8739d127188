package fetch

import (
	"errors"
	"fmt"

	"clipstitch/internal/services"
)

// ErrInvalidReference reports a source reference with no recognisable identifier.
var ErrInvalidReference = errors.New("invalid source reference")

// DownloadError reports a failed retrieval of a source. It is never retried
// within a run.
type DownloadError struct {
	SourceID string
	URL      string
	Err      error
}

func (e *DownloadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("download %s failed", e.SourceID)
	}
	return fmt.Sprintf("download %s failed: %v", e.SourceID, e.Err)
}

func (e *DownloadError) Unwrap() []error {
	return []error{services.ErrExternalTool, e.Err}
}
