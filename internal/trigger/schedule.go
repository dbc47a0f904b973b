package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// When is a parsed trigger time: either a cron expression or a fixed period.
type When struct {
	Cron  string
	Every time.Duration
}

func (w When) String() string {
	if w.Cron != "" {
		return w.Cron
	}
	return "every " + w.Every.String()
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// ParseWhen accepts
//   - cron: "*/5 * * * *", "@hourly", "@every 30s", or anything prefixed "cron:"
//   - a period: "30s", "2h30m", "00:05" (HH:MM), optionally prefixed "every:"
//     or "interval:"
func ParseWhen(raw string) (When, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return When{}, fmt.Errorf("when required")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return When{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return When{Cron: expr}, nil
	case strings.HasPrefix(low, "every:"):
		return parsePeriod(s[len("every:"):])
	case strings.HasPrefix(low, "interval:"):
		return parsePeriod(s[len("interval:"):])
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return When{Cron: s}, nil
	}
	w, err := parsePeriod(s)
	if err != nil {
		return When{}, fmt.Errorf("invalid when %q (use cron like '*/5 * * * *', HH:MM like '00:05', or a duration like '30s')", raw)
	}
	return w, nil
}

func parsePeriod(v string) (When, error) {
	v = strings.TrimSpace(v)
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return When{}, fmt.Errorf("invalid minutes in %q", v)
		}
		v = (time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute).String()
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return When{}, fmt.Errorf("invalid period %q", v)
	}
	if d < time.Second {
		return When{}, fmt.Errorf("period %s is below the 1s trigger resolution", d)
	}
	return When{Every: d}, nil
}
