// Package timecode parses the HH:MM:SS, MM:SS, and SS positions used in task
// files into whole seconds.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid reports a string that is not a recognised timecode.
var ErrInvalid = errors.New("invalid timecode")

// Timecode is a position in a source video, in whole seconds.
type Timecode int64

// maxSeconds is the largest position that still converts to a time.Duration.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// Parse accepts "HH:MM:SS", "MM:SS", or "SS". Components are ASCII digits only.
// The leading component is unbounded; minutes and seconds that follow another
// component must be in 0-59.
func Parse(value string) (Timecode, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalid)
	}
	parts := strings.Split(trimmed, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q has too many components", ErrInvalid, value)
	}

	var total int64
	for i, part := range parts {
		if part == "" || !allDigits(part) {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, value)
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalid, value, err)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("%w: %q component %q out of range", ErrInvalid, value, part)
		}
		if n > maxSeconds || total > (maxSeconds-n)/60 {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalid, value)
		}
		total = total*60 + n
	}
	return Timecode(total), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(value string) Timecode {
	tc, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return tc
}

// FromSeconds builds a Timecode from a non-negative second count.
func FromSeconds(seconds int64) (Timecode, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("%w: negative seconds %d", ErrInvalid, seconds)
	}
	if seconds > maxSeconds {
		return 0, fmt.Errorf("%w: %d seconds overflows", ErrInvalid, seconds)
	}
	return Timecode(seconds), nil
}

// Seconds returns the total whole seconds.
func (t Timecode) Seconds() int64 {
	return int64(t)
}

// Duration converts the position into a time.Duration offset.
func (t Timecode) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

// String renders the canonical HH:MM:SS form.
func (t Timecode) String() string {
	total := int64(t)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// Span returns end-start. A non-positive result means the range is empty.
func Span(start, end Timecode) time.Duration {
	return end.Duration() - start.Duration()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
