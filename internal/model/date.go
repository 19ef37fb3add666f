package model

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time of day. The zero value is 0001-01-01
// and is what missing dates default to.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses "YYYY-MM-DD" without going through time.Parse, falling back
// to RFC 3339 timestamps.
func ParseDate(s string) (Date, bool) {
	if len(s) == 10 && s[4] == '-' && s[7] == '-' {
		for i := 0; i < 10; i++ {
			if i == 4 || i == 7 {
				continue
			}
			if s[i] < '0' || s[i] > '9' {
				return Date{}, false
			}
		}
		y := int(s[0]-'0')*1000 + int(s[1]-'0')*100 + int(s[2]-'0')*10 + int(s[3]-'0')
		m := time.Month(int(s[5]-'0')*10 + int(s[6]-'0'))
		d := int(s[8]-'0')*10 + int(s[9]-'0')
		if m < 1 || m > 12 || d < 1 || d > daysIn(y, m) {
			return Date{}, false
		}
		return NewDate(y, m, d), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), true
	}
	return Date{}, false
}

func MustParseDate(s string) Date {
	d, ok := ParseDate(s)
	if !ok {
		panic(fmt.Sprintf("model: invalid date %q", s))
	}
	return d
}

func (d Date) Year() int { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int { return d.t.Day() }
func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) Time() time.Time { return d.t }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// DayNumber counts days relative to 1970-01-01. Only differences between day
// numbers are meaningful.
func (d Date) DayNumber() int64 {
	return d.t.Unix() / 86400
}

// AddMonths adds n months, clamping the day to the end of the target month
// (2024-01-31 + 1 month = 2024-02-29).
func (d Date) AddMonths(n int) Date {
	total := d.t.Year()*12 + int(d.t.Month()) - 1 + n
	y, m := total/12, time.Month(total%12+1)
	if total < 0 {
		y, m = (total-11)/12, time.Month((total%12+12)%12+1)
	}
	day := d.t.Day()
	if last := daysIn(y, m); day > last {
		day = last
	}
	return NewDate(y, m, day)
}

func (d Date) AddYears(n int) Date {
	return d.AddMonths(12 * n)
}

func (d Date) String() string {
	return d.t.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 12)
	b = append(b, '"')
	b = d.t.AppendFormat(b, dateLayout)
	return append(b, '"'), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("model: date must be a string, got %s", b)
	}
	parsed, ok := ParseDate(string(b[1 : len(b)-1]))
	if !ok {
		return fmt.Errorf("model: invalid date %s", b)
	}
	*d = parsed
	return nil
}

// AgeAt returns the number of whole years between d and ref, counting a year
// only once its anniversary has been reached.
func (d Date) AgeAt(ref Date) int {
	age := ref.Year() - d.Year()
	if ref.Before(d.AddYears(age)) {
		age--
	}
	return age
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
