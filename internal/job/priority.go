package job

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority ranks a job in the queue. Higher ranks are dequeued first.
//
// The named levels are spaced apart so producers can slot custom ranks
// between them with PriorityOf.
type Priority int64

// Named priority levels.
const (
	Lowest  Priority = -200
	Low     Priority = -100
	Default Priority = 0
	High    Priority = 100
	Highest Priority = 200
)

var priorityNames = map[Priority]string{
	Lowest:  "lowest",
	Low:     "low",
	Default: "default",
	High:    "high",
	Highest: "highest",
}

// Levels returns the named levels, highest first.
func Levels() []Priority {
	return []Priority{Highest, High, Default, Low, Lowest}
}

// DefaultPriority returns the priority used when a producer supplies none.
func DefaultPriority() Priority {
	return Default
}

// PriorityOf builds a priority from an explicit rank.
func PriorityOf(rank int64) Priority {
	return Priority(rank)
}

// Rank returns the integer rank backing p.
func (p Priority) Rank() int64 {
	return int64(p)
}

// Compare returns -1 if a ranks below b, +1 if above and 0 if equal.
func Compare(a, b Priority) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String returns the level name, or rank(N) for a custom rank.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("rank(%d)", int64(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority accepts a level name (case-insensitive), rank(N) or a plain integer.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	for p, name := range priorityNames {
		if s == name {
			return p, nil
		}
	}
	raw := s
	if strings.HasPrefix(raw, "rank(") && strings.HasSuffix(raw, ")") {
		raw = raw[len("rank(") : len(raw)-1]
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Default, fmt.Errorf("invalid priority %q: want one of highest, high, default, low, lowest or an integer", s)
	}
	return Priority(n), nil
}
