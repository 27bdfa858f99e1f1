package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted date format for path parameters.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date parameter is empty or not a real calendar day in DateLayout.
var ErrInvalidDate = errors.New("invalid date")

// ErrInvalidRange is returned when start is after end.
var ErrInvalidRange = errors.New("start date is after end date")

// ValidateDate trims the input and checks it is a calendar date in YYYY-MM-DD form.
// The returned string is the trimmed input, which compares chronologically
// with the dataset's date column.
func ValidateDate(name, input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidDate, name)
	}
	// Rejects overlong or padded input before parsing.
	if len(s) != len(DateLayout) {
		return "", fmt.Errorf("%w: %s %q must be YYYY-MM-DD", ErrInvalidDate, name, s)
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("%w: %s %q must be YYYY-MM-DD", ErrInvalidDate, name, s)
	}
	return s, nil
}

// ValidateRange validates both bounds and rejects start > end.
func ValidateRange(startInput, endInput string) (start, end string, err error) {
	start, err = ValidateDate("start", startInput)
	if err != nil {
		return "", "", err
	}
	end, err = ValidateDate("end", endInput)
	if err != nil {
		return "", "", err
	}
	if start > end {
		return "", "", fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}
	return start, end, nil
}

// WindowStart returns the date windowDays before reference, in DateLayout.
func WindowStart(reference time.Time, windowDays int) string {
	return reference.AddDate(0, 0, -windowDays).Format(DateLayout)
}
