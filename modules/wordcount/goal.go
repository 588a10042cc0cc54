package wordcount

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultWordGoal is the standard NaNoWriMo target.
const DefaultWordGoal int64 = 50000

// ParseGoal reads a goal argument such as "75,000" or "10k".
//
// An empty argument yields DefaultWordGoal. Fractions are truncated.
func ParseGoal(argument string) (int64, error) {
	raw := strings.TrimSpace(argument)
	if raw == "" {
		return DefaultWordGoal, nil
	}

	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.ReplaceAll(strings.ToLower(raw), "k", "000")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse goal %q: %w", argument, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || math.Abs(value) > math.MaxInt64/2 {
		return 0, fmt.Errorf("parse goal %q: out of range", argument)
	}

	return int64(value), nil
}

// Par returns where a writer should be on now's day to finish goal by the
// end of the month. Ties round to even.
func Par(goal int64, now time.Time) int64 {
	days := daysInMonth(now)
	par := float64(goal) / float64(days) * float64(now.Day())

	return int64(math.RoundToEven(par))
}

func daysInMonth(now time.Time) int {
	firstOfNext := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())

	return firstOfNext.AddDate(0, 0, -1).Day()
}
