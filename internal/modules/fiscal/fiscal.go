// Package fiscal maps dates to Indian financial years (1 April to 31 March).
package fiscal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/domain"
)

// ErrInvalidLabel is returned for labels not of the form FY<yyyy>-<yy>
var ErrInvalidLabel = errors.New("invalid financial year label")

var labelPattern = regexp.MustCompile(`^FY(\d{4})-(\d{2})$`)

const dateLayout = "2006-01-02"

// Window is an inclusive range of ISO dates; empty bounds are open
type Window struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Contains reports whether an ISO date falls inside the window.
// ISO dates compare correctly as strings.
func (w Window) Contains(date string) bool {
	if w.Start != "" && date < w.Start {
		return false
	}
	if w.End != "" && date > w.End {
		return false
	}
	return true
}

// IsOpen reports whether the window has no bounds at all
func (w Window) IsOpen() bool {
	return w.Start == "" && w.End == ""
}

// Bounds returns the first and last day of the financial year named by label.
// An empty label selects the financial year containing now.
func Bounds(label string, now time.Time) (string, string, error) {
	startYear, err := startYearOf(label, now)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%04d-04-01", startYear), fmt.Sprintf("%04d-03-31", startYear+1), nil
}

// WindowFor returns the window of the financial year named by label
func WindowFor(label string, now time.Time) (Window, error) {
	start, end, err := Bounds(label, now)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

// Label returns the label of the financial year containing an ISO date
func Label(date string) (string, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	return labelFor(d), nil
}

// CurrentLabel returns the label of the financial year containing now
func CurrentLabel(now time.Time) string {
	return labelFor(now)
}

func labelFor(t time.Time) string {
	startYear := t.Year()
	if t.Month() < time.April {
		startYear--
	}
	return fmt.Sprintf("FY%04d-%02d", startYear, (startYear+1)%100)
}

func startYearOf(label string, now time.Time) (int, error) {
	if label == "" {
		if now.Month() >= time.April {
			return now.Year(), nil
		}
		return now.Year() - 1, nil
	}

	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	startYear, _ := strconv.Atoi(m[1])
	suffix, _ := strconv.Atoi(m[2])
	if suffix != (startYear+1)%100 {
		return 0, fmt.Errorf("%w: %q (expected FY%04d-%02d)", ErrInvalidLabel, label, startYear, (startYear+1)%100)
	}
	return startYear, nil
}

// AvailableFYs returns the distinct financial years that contain at least one
// sell, ascending. Sell dates that are not ISO dates are skipped.
func AvailableFYs(ctx context.Context, reader domain.LedgerReader, log zerolog.Logger) ([]string, error) {
	dates, err := reader.SellDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sell dates: %w", err)
	}

	seen := make(map[string]struct{})
	labels := make([]string, 0)
	for _, date := range dates {
		label, err := Label(date)
		if err != nil {
			log.Warn().Str("trade_date", date).Msg("Skipping sell with non-ISO trade date")
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}

	sort.Strings(labels)
	return labels, nil
}
