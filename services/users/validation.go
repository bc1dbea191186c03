package users

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Custom offset bounds, in hours before the qualification deadline.
const (
	MinOffsetHours = 20.0 / 60.0 // 20 minutes
	MaxOffsetHours = 70.0        // just under three days
)

// ValidateOffset checks a custom notification offset against the allowed
// range and returns a descriptive error when it falls outside.
func ValidateOffset(hours float64) error {
	if hours < MinOffsetHours {
		return fmt.Errorf("offset too short: minimum is 20m")
	}
	if hours > MaxOffsetHours {
		return fmt.Errorf("offset too long: maximum is %dh", int(MaxOffsetHours))
	}
	return nil
}

// siteLangs are the language codes the upstream site serves under.
var siteLangs = map[string]bool{
	"gb": true, "de": true, "es": true, "fr": true, "it": true,
	"nl": true, "pl": true, "pt": true, "ro": true, "ru": true,
	"tr": true, "gr": true, "hu": true, "cz": true, "fi": true,
	"se": true, "bg": true, "hr": true, "lt": true, "br": true,
}

// ValidLang reports whether the upstream site serves the given language code.
func ValidLang(lang string) bool {
	return siteLangs[strings.ToLower(lang)]
}

var (
	hoursMinutesRe = regexp.MustCompile(`^(\d+)\s*h(?:ours?)?\s*(\d+)\s*m(?:in(?:utes?)?)?$`)
	hoursOnlyRe    = regexp.MustCompile(`^(\d+)\s*h(?:ours?)?$`)
	minutesOnlyRe  = regexp.MustCompile(`^(\d+)\s*m(?:in(?:utes?)?)?$`)
)

// ParseOffset converts user time input into fractional hours. Accepted
// forms: "20m", "30min", "45 minutes", "2h", "12 hours", "1h 30m", "2h30m".
func ParseOffset(input string) (float64, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return 0, fmt.Errorf("enter a time, e.g. 2h30m or 45m")
	}

	if m := hoursMinutesRe.FindStringSubmatch(input); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		return float64(h) + float64(min)/60, nil
	}
	if m := hoursOnlyRe.FindStringSubmatch(input); m != nil {
		h, _ := strconv.Atoi(m[1])
		return float64(h), nil
	}
	if m := minutesOnlyRe.FindStringSubmatch(input); m != nil {
		min, _ := strconv.Atoi(m[1])
		return float64(min) / 60, nil
	}

	return 0, fmt.Errorf("unrecognized time format %q, use e.g. 2h30m or 45m", input)
}

// FormatOffset renders an offset as "1h 30m", "12h", or "20m". A nil offset
// renders as "not set".
func FormatOffset(hours *float64) string {
	if hours == nil {
		return "not set"
	}
	totalMinutes := int(*hours*60 + 0.5)
	h := totalMinutes / 60
	m := totalMinutes % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
