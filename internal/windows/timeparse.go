package windows

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?:\s*([AaPp])\.?[Mm]\.?)?$`)

// ParseClock parses a time of day in either 24-hour ("17:00") or 12-hour
// ("5:00 PM") form into a normalized hour and minute. Every call site that
// needs a window's start instant goes through here.
func ParseClock(s string) (hour, minute int, err error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}

	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}

	switch {
	case m[3] == "":
		if hour > 23 {
			return 0, 0, fmt.Errorf("invalid time %q", s)
		}
	case strings.EqualFold(m[3], "a"):
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("invalid time %q", s)
		}
		if hour == 12 {
			hour = 0
		}
	default: // PM
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("invalid time %q", s)
		}
		if hour != 12 {
			hour += 12
		}
	}
	return hour, minute, nil
}
