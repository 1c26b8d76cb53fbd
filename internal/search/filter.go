package search

import (
	"errors"
	"strings"
	"time"
)

// Filter is a parsed, AND-composed filter expression (spec §4.6.9
// filter expression grammar).
type Filter struct {
	Folder    string
	Tag       string
	DateAfter *time.Time
	DateBefore *time.Time
	DateExact  *time.Time
}

// ErrInvalidFilterAtom is returned when a filter atom cannot be parsed;
// per spec §4.6.9 this must not mutate FSM state.
var ErrInvalidFilterAtom = errors.New("search: invalid filter atom")

const dateLayout = "2006-01-02"

// ParseFilterExpression parses a whitespace-separated atom list into a
// Filter (spec §4.6.9). A bare string atom is an alias for
// folder:<string>.
func ParseFilterExpression(expr string) (Filter, error) {
	var f Filter
	for _, atom := range strings.Fields(expr) {
		if err := applyAtom(&f, atom); err != nil {
			return Filter{}, err
		}
	}
	return f, nil
}

func applyAtom(f *Filter, atom string) error {
	switch {
	case strings.HasPrefix(atom, "folder:"):
		f.Folder = strings.TrimPrefix(atom, "folder:")
	case strings.HasPrefix(atom, "tag:"):
		f.Tag = strings.TrimPrefix(atom, "tag:")
	case strings.HasPrefix(atom, "date:"):
		return applyDateAtom(f, strings.TrimPrefix(atom, "date:"))
	case atom != "":
		f.Folder = atom
	default:
		return ErrInvalidFilterAtom
	}
	return nil
}

func applyDateAtom(f *Filter, expr string) error {
	switch {
	case strings.HasPrefix(expr, ">"):
		t, err := time.Parse(dateLayout, strings.TrimPrefix(expr, ">"))
		if err != nil {
			return ErrInvalidFilterAtom
		}
		f.DateAfter = &t
	case strings.HasPrefix(expr, "<"):
		t, err := time.Parse(dateLayout, strings.TrimPrefix(expr, "<"))
		if err != nil {
			return ErrInvalidFilterAtom
		}
		f.DateBefore = &t
	case strings.Contains(expr, ".."):
		parts := strings.SplitN(expr, "..", 2)
		if len(parts) != 2 {
			return ErrInvalidFilterAtom
		}
		from, err := time.Parse(dateLayout, parts[0])
		if err != nil {
			return ErrInvalidFilterAtom
		}
		to, err := time.Parse(dateLayout, parts[1])
		if err != nil {
			return ErrInvalidFilterAtom
		}
		// Range end is inclusive of the whole day (spec §4.6.9 Filter
		// parsing example: "dateTo: 2025-12-07T23:59:59.999").
		endOfDay := to.Add(24*time.Hour - time.Nanosecond)
		f.DateAfter = &from
		f.DateBefore = &endOfDay
	default:
		t, err := time.Parse(dateLayout, expr)
		if err != nil {
			return ErrInvalidFilterAtom
		}
		f.DateExact = &t
	}
	return nil
}

// Matches reports whether a result satisfies the filter (AND
// composition across all set fields).
func (f Filter) Matches(specFolder string, createdAt time.Time, tags []string) bool {
	if f.Folder != "" && !strings.EqualFold(f.Folder, specFolder) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range tags {
			if strings.EqualFold(t, f.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateExact != nil && !sameDay(*f.DateExact, createdAt) {
		return false
	}
	if f.DateAfter != nil && createdAt.Before(*f.DateAfter) {
		return false
	}
	if f.DateBefore != nil && createdAt.After(*f.DateBefore) {
		return false
	}
	return true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
