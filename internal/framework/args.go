package framework

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMissingArgument is returned when Args runs out of arguments
var ErrMissingArgument = errors.New("missing argument")

// Args holds the arguments that follow a command token
type Args struct {
	raw    string
	values []string
	pos    int
}

// NewArgs splits raw on delimiters. Longer delimiters win over their prefixes,
// pieces are trimmed and empty pieces dropped. Without delimiters raw is split
// on whitespace.
func NewArgs(raw string, delimiters []string) *Args {
	return &Args{
		raw:    strings.TrimSpace(raw),
		values: splitArgs(raw, delimiters),
	}
}

func splitArgs(raw string, delimiters []string) []string {
	delims := make([]string, 0, len(delimiters))
	for _, d := range delimiters {
		if d != "" {
			delims = append(delims, d)
		}
	}
	if len(delims) == 0 {
		return strings.Fields(raw)
	}
	sort.SliceStable(delims, func(i, j int) bool {
		return len(delims[i]) > len(delims[j])
	})

	var out []string
	start := 0
	for i := 0; i < len(raw); {
		matched := ""
		for _, d := range delims {
			if strings.HasPrefix(raw[i:], d) {
				matched = d
				break
			}
		}
		if matched == "" {
			i++
			continue
		}
		out = appendArg(out, raw[start:i])
		i += len(matched)
		start = i
	}
	return appendArg(out, raw[start:])
}

func appendArg(out []string, piece string) []string {
	if piece = strings.TrimSpace(piece); piece != "" {
		out = append(out, piece)
	}
	return out
}

// Single returns the next argument and advances
func (a *Args) Single() (string, error) {
	if a.pos >= len(a.values) {
		return "", fmt.Errorf("%w at position %d", ErrMissingArgument, a.pos+1)
	}
	v := a.values[a.pos]
	a.pos++
	return v, nil
}

// SingleFloat parses the next argument as a float64 and advances
func (a *Args) SingleFloat() (float64, error) {
	v, err := a.Single()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %d %q is not a number: %w", a.pos, v, err)
	}
	return f, nil
}

// Rest returns the arguments not consumed yet
func (a *Args) Rest() []string {
	return append([]string(nil), a.values[a.pos:]...)
}

// Values returns every argument regardless of position
func (a *Args) Values() []string {
	return append([]string(nil), a.values...)
}

// Full returns the trimmed unsplit argument text
func (a *Args) Full() string {
	return a.raw
}

// Len is the total number of arguments
func (a *Args) Len() int {
	return len(a.values)
}

// Remaining is the number of arguments not consumed yet
func (a *Args) Remaining() int {
	return len(a.values) - a.pos
}

// Rewind resets the position to the first argument
func (a *Args) Rewind() {
	a.pos = 0
}
