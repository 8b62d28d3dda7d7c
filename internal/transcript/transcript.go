// Package transcript cuts lecture transcripts into topic sections using the
// inline "(MM:SS)" markers the transcripts carry.
package transcript

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Unbounded is the end position meaning "until the end of the transcript".
const Unbounded = math.MaxInt

// ErrBadTimestamp is returned for positions that are neither "MM:SS" nor whole seconds.
var ErrBadTimestamp = errors.New("invalid timestamp")

var markerRegex = regexp.MustCompile(`\((\d{2}):(\d{2})\)`)

// Marker is a timestamp marker found in the transcript text.
type Marker struct {
	Offset  int // byte offset of the opening parenthesis
	Seconds int
}

// Index is a transcript with its markers scanned once.
type Index struct {
	text    string
	markers []Marker
}

// New scans text for markers.
func New(text string) *Index {
	idx := &Index{text: text}
	for _, m := range markerRegex.FindAllStringSubmatchIndex(text, -1) {
		minutes, _ := strconv.Atoi(text[m[2]:m[3]])
		seconds, _ := strconv.Atoi(text[m[4]:m[5]])
		idx.markers = append(idx.markers, Marker{Offset: m[0], Seconds: minutes*60 + seconds})
	}
	return idx
}

// Load reads and indexes a transcript file.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}
	return New(string(data)), nil
}

// Text returns the full transcript.
func (idx *Index) Text() string { return idx.text }

// Markers returns the markers in document order.
func (idx *Index) Markers() []Marker { return idx.markers }

// ParseSeconds converts "MM:SS" or a whole number of seconds into seconds.
func ParseSeconds(ts string) (int, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadTimestamp)
	}
	if minutes, seconds, ok := strings.Cut(ts, ":"); ok {
		m, err := strconv.Atoi(minutes)
		if err != nil || m < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, ts)
		}
		s, err := strconv.Atoi(seconds)
		if err != nil || s < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, ts)
		}
		return m*60 + s, nil
	}
	n, err := strconv.Atoi(ts)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, ts)
	}
	return n, nil
}

// Locate returns the section between start and end. An empty end is unbounded.
// A start past every marker yields an empty section, not an error.
func (idx *Index) Locate(start, end string) (string, error) {
	startSec, err := ParseSeconds(start)
	if err != nil {
		return "", fmt.Errorf("start: %w", err)
	}
	endSec := Unbounded
	if strings.TrimSpace(end) != "" {
		if endSec, err = ParseSeconds(end); err != nil {
			return "", fmt.Errorf("end: %w", err)
		}
	}
	return idx.Span(startSec, endSec), nil
}

// Span is Locate on numeric positions. The section starts at the first marker
// at or after startSec and stops at the first later marker past endSec.
func (idx *Index) Span(startSec, endSec int) string {
	for i, m := range idx.markers {
		if m.Seconds < startSec {
			continue
		}
		stop := len(idx.text)
		for _, next := range idx.markers[i+1:] {
			if next.Seconds > endSec {
				stop = next.Offset
				break
			}
		}
		return strings.TrimSpace(idx.text[m.Offset:stop])
	}
	return ""
}

// Format renders seconds as "MM:SS".
func Format(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
