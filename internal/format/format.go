// Package format renders values for chat messages.
package format

import (
	"fmt"
	"time"
)

// DateLayout is day/month/year with a 24h clock.
const DateLayout = "02/01/2006 15:04"

// Never is rendered for a missing timestamp.
const Never = "Never"

// Bytes renders size with one decimal in the largest unit below 1024.
func Bytes(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}

// Date renders t, or Never when t is nil or zero.
func Date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return Never
	}
	return t.Format(DateLayout)
}

// Truncate shortens s to max runes, ending with "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// Page describes one slice of a paginated list.
type Page struct {
	Index int // zero-based, clamped into range
	Total int // number of pages, at least 1
	Start int
	End   int
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool { return p.Index > 0 }

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool { return p.Index+1 < p.Total }

// Paginate splits n items into pages of size and returns page index.
func Paginate(n, size, index int) Page {
	if size <= 0 {
		size = 1
	}
	total := (n + size - 1) / size
	if total < 1 {
		total = 1
	}
	if index < 0 {
		index = 0
	}
	if index >= total {
		index = total - 1
	}
	start := index * size
	end := start + size
	if end > n {
		end = n
	}
	if start > n {
		start = n
	}
	return Page{Index: index, Total: total, Start: start, End: end}
}
