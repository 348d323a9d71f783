package sweep

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is an optional fixed sweep cadence. The zero value means "derive
// the wait from cooldowns".
//
// Accepted forms:
//   - cron: "0 */6 * * *", "@daily", "@every 6h" (or forced with "cron:")
//   - interval: "30m", "2h30m", or HH:MM such as "06:00" (or forced with "every:")
type Schedule struct {
	cron   cron.Schedule
	every  time.Duration
	Source string // "cron" | "duration" | "hhmm" | "minutes"
	Raw    string
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

func (s Schedule) IsZero() bool { return s.cron == nil && s.every <= 0 }

// Next returns the next sweep time after now.
func (s Schedule) Next(now time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(now)
	}
	return now.Add(s.every)
}

// ScheduleFromMinutes builds an interval schedule; minutes <= 0 yields the
// zero Schedule.
func ScheduleFromMinutes(minutes int) Schedule {
	if minutes <= 0 {
		return Schedule{}
	}
	return Schedule{every: time.Duration(minutes) * time.Minute, Source: "minutes", Raw: strconv.Itoa(minutes)}
}

// ParseSchedule parses raw; an empty string yields the zero Schedule.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, nil
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]), raw)
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]), raw)
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return parseCron(s, raw)
	default:
		return parseInterval(s, raw)
	}
}

func parseCron(expr, raw string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron expression required in %q", raw)
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return Schedule{cron: sched, Source: "cron", Raw: raw}, nil
}

func parseInterval(v, raw string) (Schedule, error) {
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Schedule{every: d, Source: "hhmm", Raw: raw}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use cron like '0 */6 * * *', HH:MM like '06:00', or duration like '30m')", raw)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{every: d, Source: "duration", Raw: raw}, nil
}
