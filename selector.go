package main

import (
	"errors"
	"fmt"
	"strings"
)

// SelectAll is the selector entry that matches every segment.
const SelectAll = "all"

var ErrUsage = errors.New("usage error")

// Selector is the ordered list of segment names to announce, or the single
// entry SelectAll.
type Selector []string

// IsAll reports whether the selector matches every segment.
func (s Selector) IsAll() bool {
	return len(s) == 1 && s[0] == SelectAll
}

// Matches reports whether a record named name is selected by entry.
func (s Selector) Matches(entry, name string) bool {
	return entry == SelectAll || strings.EqualFold(entry, name)
}

// ParseSelector resolves the -a flag and the optional positional argument
// into a Selector. Entries made only of digits get label prepended, so "10"
// with label "vlan" selects "vlan10".
func ParseSelector(all bool, args []string, label string) (Selector, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("%w: expected a single comma-separated segment list, got %d arguments", ErrUsage, len(args))
	}
	if all {
		if len(args) == 1 {
			Logger.Warnf("-a given, ignoring segment list [%s]", args[0])
		}
		return Selector{SelectAll}, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: either -a or a segment must be given", ErrUsage)
	}

	var sel Selector
	for _, name := range strings.Split(args[0], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty segment name in [%s]", ErrUsage, args[0])
		}
		if isDigits(name) {
			name = label + name
		}
		sel = append(sel, name)
	}
	return sel, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
