package kql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	tick = 100 * time.Nanosecond
)

// FormatTimespan formats a duration as a Kusto timespan literal: a whole
// number of days, hours, minutes or seconds (7d, 12h, 90m), or, for durations
// under one second, of milliseconds, microseconds or ticks (45ms). Anything
// else is written in the d.hh:mm:ss.fffffff form the service itself prints.
func FormatTimespan(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	neg := ""
	if d < 0 {
		neg = "-"
		d = -d
	}
	switch {
	case d%day == 0:
		return fmt.Sprintf("%s%dd", neg, d/day)
	case d%time.Hour == 0:
		return fmt.Sprintf("%s%dh", neg, d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%s%dm", neg, d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%s%ds", neg, d/time.Second)
	case d < time.Second && d%time.Millisecond == 0:
		return fmt.Sprintf("%s%dms", neg, d/time.Millisecond)
	case d < time.Second && d%time.Microsecond == 0:
		return fmt.Sprintf("%s%dmicrosecond", neg, d/time.Microsecond)
	case d < time.Second && d%tick == 0:
		return fmt.Sprintf("%s%dtick", neg, d/tick)
	}
	return neg + formatClockTimespan(d)
}

// formatClockTimespan prints d.hh:mm:ss.fffffff, the service's native form.
func formatClockTimespan(d time.Duration) string {
	days := d / day
	d -= days * day
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	ticks := d / tick

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%d.", days)
	}
	fmt.Fprintf(&b, "%02d:%02d:%02d", hours, minutes, seconds)
	if ticks > 0 {
		fmt.Fprintf(&b, ".%07d", ticks)
	}
	return b.String()
}

// timespanUnits maps the literal unit suffixes the service accepts to their
// durations. Longer suffixes must be tried before their prefixes.
var timespanUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"microseconds", time.Microsecond},
	{"microsecond", time.Microsecond},
	{"milliseconds", time.Millisecond},
	{"millisecond", time.Millisecond},
	{"seconds", time.Second},
	{"second", time.Second},
	{"minutes", time.Minute},
	{"minute", time.Minute},
	{"hours", time.Hour},
	{"hour", time.Hour},
	{"days", day},
	{"day", day},
	{"ticks", tick},
	{"tick", tick},
	{"ms", time.Millisecond},
	{"d", day},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// ParseTimespan parses a Kusto timespan literal: a number with a unit suffix
// (12h, 45ms, 2d), a time()/timespan() wrapper around one, or the clock form
// d.hh:mm:ss.fffffff.
func ParseTimespan(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(s)
	for _, wrapper := range []string{"timespan", "time"} {
		if strings.HasPrefix(s, wrapper+"(") && strings.HasSuffix(s, ")") {
			s = strings.TrimSpace(s[len(wrapper)+1 : len(s)-1])
			break
		}
	}
	if s == "" {
		return 0, fmt.Errorf("empty timespan literal")
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	if strings.Contains(s, ":") {
		d, err := parseClockTimespan(s)
		if err != nil {
			return 0, fmt.Errorf("timespan literal %q: %s", orig, err)
		}
		if neg {
			d = -d
		}
		return d, nil
	}

	for _, u := range timespanUnits {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
		if num == "" {
			continue
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("timespan literal %q has a bad number: %s", orig, err)
		}
		d := time.Duration(f * float64(u.unit))
		if neg {
			d = -d
		}
		return d, nil
	}
	return 0, fmt.Errorf("unrecognized timespan literal %q", orig)
}

// parseClockTimespan handles [d.]hh:mm:ss[.fffffff]. The fraction field's
// length selects its multiplier, down to a tick (100ns) and below.
func parseClockTimespan(s string) (time.Duration, error) {
	sp := strings.Split(s, ":")
	if len(sp) != 3 {
		return 0, fmt.Errorf("does not fit format 'hh:mm:ss' (%s)", s)
	}

	var sum time.Duration

	dh := strings.Split(sp[0], ".")
	switch len(dh) {
	case 1:
		hours, err := strconv.Atoi(dh[0])
		if err != nil {
			return 0, fmt.Errorf("hours field was incorrect, was %s", sp[0])
		}
		sum += time.Duration(hours) * time.Hour
	case 2:
		days, err := strconv.Atoi(dh[0])
		if err != nil {
			return 0, fmt.Errorf("days field was incorrect, was %s", sp[0])
		}
		hours, err := strconv.Atoi(dh[1])
		if err != nil {
			return 0, fmt.Errorf("hours field was incorrect, was %s", sp[0])
		}
		sum += time.Duration(days)*day + time.Duration(hours)*time.Hour
	default:
		return 0, fmt.Errorf("days/hours field was incorrect, was %s", sp[0])
	}

	minutes, err := strconv.Atoi(sp[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("minutes field was incorrect, was %s", sp[1])
	}
	sum += time.Duration(minutes) * time.Minute

	sf := strings.Split(sp[2], ".")
	seconds, err := strconv.Atoi(sf[0])
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("seconds field was incorrect, was %s", sp[2])
	}
	sum += time.Duration(seconds) * time.Second

	if len(sf) == 2 {
		n, err := strconv.Atoi(sf[1])
		if err != nil {
			return 0, fmt.Errorf("fraction field was incorrect, was %s", sp[2])
		}
		var prec time.Duration
		switch len(sf[1]) {
		case 1:
			prec = time.Duration(n) * (100 * time.Millisecond)
		case 2:
			prec = time.Duration(n) * (10 * time.Millisecond)
		case 3:
			prec = time.Duration(n) * time.Millisecond
		case 4:
			prec = time.Duration(n) * (100 * time.Microsecond)
		case 5:
			prec = time.Duration(n) * (10 * time.Microsecond)
		case 6:
			prec = time.Duration(n) * time.Microsecond
		case 7:
			prec = time.Duration(n) * tick
		case 8:
			prec = time.Duration(n) * (10 * time.Nanosecond)
		case 9:
			prec = time.Duration(n) * time.Nanosecond
		default:
			return 0, fmt.Errorf("fraction field did not have 1-9 digits, had %s", sp[2])
		}
		sum += prec
	} else if len(sf) > 2 {
		return 0, fmt.Errorf("seconds field was incorrect, was %s", sp[2])
	}

	return sum, nil
}

// FormatDatetime formats a point in time as a datetime() literal.
func FormatDatetime(t time.Time) string {
	return fmt.Sprintf("datetime(%s)", t.UTC().Format("2006-01-02T15:04:05.9999999Z07:00"))
}

// datetimeLayouts are the shapes the service prints and accepts.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.9999999",
	"2006-01-02T15:04:05.9999999",
	"2006-01-02",
}

// ParseDatetime parses a datetime literal, with or without the datetime()
// wrapper.
func ParseDatetime(s string) (time.Time, error) {
	orig := s
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "datetime(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[len("datetime(") : len(s)-1])
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime literal %q", orig)
}
