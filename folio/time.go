package folio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - calendar day (business dates carry no time of day)
// =============================================================================

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func StartOfMonth(d Date) Date { return NewDate(d.Time.Year(), d.Time.Month(), 1) }

// =============================================================================
// DATE RANGE
// =============================================================================

// DateRange is an inclusive range of days. A zero bound is open.
type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Contains(d Date) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

// IsOpen reports whether neither bound is set.
func (r DateRange) IsOpen() bool { return r.From.IsZero() && r.To.IsZero() }

func (r DateRange) Valid() bool {
	return r.From.IsZero() || r.To.IsZero() || !r.To.Before(r.From)
}

// Days lists every day in a closed range. Open ranges yield nil.
func (r DateRange) Days() []Date {
	if r.From.IsZero() || r.To.IsZero() {
		return nil
	}
	var days []Date
	for d := r.From; !d.After(r.To); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s to %s", r.From, r.To)
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now" so date rules can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today is the calendar day of c.Now().
func Today(c Clock) Date {
	if c == nil {
		c = SystemClock{}
	}
	return DateOf(c.Now())
}
