// Package tasks loads the ordered list of segment requests a pipeline run
// consumes. Files are validated eagerly: one malformed entry rejects the whole
// file before any download starts.
package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"clipstitch/internal/services"
	"clipstitch/internal/timecode"
)

// ErrInvalidTaskList marks a task file that cannot be processed at all.
var ErrInvalidTaskList = errors.New("invalid task list")

// Field names expected in each task entry.
const (
	FieldURL       = "url"
	FieldStartTime = "startTime"
	FieldEndTime   = "endTime"
)

// Request is one segment request: a source reference and the half-open range
// [Start, End) to extract from it.
type Request struct {
	// Index is the 1-based position in the task file.
	Index     int
	SourceRef string
	Start     timecode.Timecode
	End       timecode.Timecode
}

// Duration returns End-Start. Non-positive means the range is invalid.
func (r Request) Duration() time.Duration {
	return timecode.Span(r.Start, r.End)
}

// ValidRange reports whether End is strictly after Start.
func (r Request) ValidRange() bool {
	return r.End > r.Start
}

// ValidationError describes the first entry that made a task list unusable.
type ValidationError struct {
	// Entry is the 1-based entry position, or 0 for file-level problems.
	Entry  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Entry > 0 && e.Field != "":
		return fmt.Sprintf("%s: entry %d: %s: %s", ErrInvalidTaskList, e.Entry, e.Field, e.Reason)
	case e.Entry > 0:
		return fmt.Sprintf("%s: entry %d: %s", ErrInvalidTaskList, e.Entry, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", ErrInvalidTaskList, e.Reason)
	}
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidTaskList, services.ErrValidation}
}

// Load reads and validates a task file.
func Load(path string) ([]Request, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "tasks", "open", path, err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes a JSON array of {url, startTime, endTime} objects. A leading
// UTF-8 byte-order mark is tolerated. Times may be timecode strings or whole
// second counts. An empty array is valid and yields no requests.
func Parse(r io.Reader) ([]Request, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("read: %v", err)}
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &ValidationError{Reason: "file is empty"}
	}
	if data[0] != '[' {
		return nil, &ValidationError{Reason: "top-level value must be a JSON array"}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("decode: %v", err)}
	}

	requests := make([]Request, 0, len(entries))
	for i, raw := range entries {
		req, err := parseEntry(i+1, raw)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func parseEntry(index int, raw json.RawMessage) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Request{}, &ValidationError{Entry: index, Reason: "entry must be a JSON object"}
	}

	ref, err := stringField(index, fields, FieldURL)
	if err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(ref) == "" {
		return Request{}, &ValidationError{Entry: index, Field: FieldURL, Reason: "must not be empty"}
	}
	start, err := timeField(index, fields, FieldStartTime)
	if err != nil {
		return Request{}, err
	}
	end, err := timeField(index, fields, FieldEndTime)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Index:     index,
		SourceRef: strings.TrimSpace(ref),
		Start:     start,
		End:       end,
	}, nil
}

func lookup(index int, fields map[string]json.RawMessage, name string) (json.RawMessage, error) {
	raw, ok := fields[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, &ValidationError{Entry: index, Field: name, Reason: "missing"}
	}
	return raw, nil
}

func stringField(index int, fields map[string]json.RawMessage, name string) (string, error) {
	raw, err := lookup(index, fields, name)
	if err != nil {
		return "", err
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &ValidationError{Entry: index, Field: name, Reason: "must be a string"}
	}
	return value, nil
}

func timeField(index int, fields map[string]json.RawMessage, name string) (timecode.Timecode, error) {
	raw, err := lookup(index, fields, name)
	if err != nil {
		return 0, err
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		tc, err := timecode.Parse(text)
		if err != nil {
			return 0, &ValidationError{Entry: index, Field: name, Reason: err.Error()}
		}
		return tc, nil
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		seconds, err := strconv.ParseInt(number.String(), 10, 64)
		if err != nil {
			return 0, &ValidationError{Entry: index, Field: name, Reason: "numeric times must be whole seconds"}
		}
		tc, err := timecode.FromSeconds(seconds)
		if err != nil {
			return 0, &ValidationError{Entry: index, Field: name, Reason: err.Error()}
		}
		return tc, nil
	}
	return 0, &ValidationError{Entry: index, Field: name, Reason: "must be a timecode string or whole seconds"}
}
