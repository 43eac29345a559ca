package imports

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateOrder declares how a source writes its trade dates
type DateOrder string

const (
	DateOrderISO  DateOrder = "iso"  // YYYY-MM-DD, optionally followed by a time
	DateOrderMDY  DateOrder = "mdy"  // M/D/YYYY
	DateOrderDMY  DateOrder = "dmy"  // D/M/YYYY
	DateOrderAuto DateOrder = "auto" // ISO, then M/D, then D/M, else pass-through
)

const isoLayout = "2006-01-02"

// TimestampLayout is the stored form of execution timestamps. Sources write
// either a T or a space separator; both are rewritten to this layout so
// timestamps of different sources sort correctly as strings.
const TimestampLayout = "2006-01-02T15:04:05"

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateOrder parses a declared date order. Empty stays empty so the
// importer default applies.
func ParseDateOrder(value string) (DateOrder, error) {
	order := DateOrder(strings.ToLower(strings.TrimSpace(value)))
	switch order {
	case "", DateOrderISO, DateOrderMDY, DateOrderDMY, DateOrderAuto:
		return order, nil
	}
	return "", fmt.Errorf("invalid date order %q (expected iso, mdy, dmy or auto)", value)
}

// DateNote qualifies a date normalised in auto mode
type DateNote int

const (
	DateExact        DateNote = iota
	DateAmbiguous             // day and month both <= 12, read as M/D
	DateUnrecognised          // kept verbatim
)

// NormalizeDate converts a raw trade date to YYYY-MM-DD.
// Explicit orders fail on anything they cannot parse. Auto mode never fails:
// unrecognised values come back unchanged with DateUnrecognised.
func NormalizeDate(raw string, order DateOrder) (string, DateNote, error) {
	value := strings.TrimSpace(raw)

	switch order {
	case DateOrderISO:
		if len(value) < len(isoLayout) {
			return "", DateExact, fmt.Errorf("invalid ISO date %q", raw)
		}
		if _, err := time.Parse(isoLayout, value[:len(isoLayout)]); err != nil {
			return "", DateExact, fmt.Errorf("invalid ISO date %q", raw)
		}
		return value[:len(isoLayout)], DateExact, nil

	case DateOrderMDY:
		t, err := time.Parse("1/2/2006", value)
		if err != nil {
			return "", DateExact, fmt.Errorf("invalid M/D/YYYY date %q", raw)
		}
		return t.Format(isoLayout), DateExact, nil

	case DateOrderDMY:
		t, err := time.Parse("2/1/2006", value)
		if err != nil {
			return "", DateExact, fmt.Errorf("invalid D/M/YYYY date %q", raw)
		}
		return t.Format(isoLayout), DateExact, nil

	case DateOrderAuto:
		return normalizeAuto(value), autoNote(value), nil
	}

	return "", DateExact, fmt.Errorf("invalid date order %q", order)
}

func normalizeAuto(value string) string {
	if len(value) >= 8 && value[4] == '-' {
		if len(value) > len(isoLayout) {
			return value[:len(isoLayout)]
		}
		return value
	}
	if t, err := time.Parse("1/2/2006", value); err == nil {
		return t.Format(isoLayout)
	}
	if t, err := time.Parse("2/1/2006", value); err == nil {
		return t.Format(isoLayout)
	}
	return value
}

func autoNote(value string) DateNote {
	if len(value) >= 8 && value[4] == '-' {
		return DateExact
	}
	if _, err := time.Parse("1/2/2006", value); err == nil {
		parts := strings.Split(value, "/")
		first, _ := strconv.Atoi(parts[0])
		second, _ := strconv.Atoi(parts[1])
		if first <= 12 && second <= 12 && first != second {
			return DateAmbiguous
		}
		return DateExact
	}
	if _, err := time.Parse("2/1/2006", value); err == nil {
		return DateExact
	}
	return DateUnrecognised
}

// NormalizeTimestamp rewrites an execution timestamp to TimestampLayout.
// Fractional seconds are dropped and a zone offset, if any, is ignored so the
// exchange wall clock is kept. A bare date is kept as YYYY-MM-DD, which sorts
// ahead of any time on that day. Unparseable values come back verbatim with ok false.
func NormalizeTimestamp(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", true
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.Format(TimestampLayout), true
	}

	wall := value
	if idx := strings.IndexByte(wall, '.'); idx > len(isoLayout) {
		wall = wall[:idx]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, wall); err == nil {
			if layout == isoLayout {
				return t.Format(isoLayout), true
			}
			return t.Format(TimestampLayout), true
		}
	}
	return value, false
}

// IsISODate reports whether value is a valid YYYY-MM-DD date
func IsISODate(value string) bool {
	if len(value) != len(isoLayout) {
		return false
	}
	_, err := time.Parse(isoLayout, value)
	return err == nil
}
