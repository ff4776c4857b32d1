package dispatcher

import "time"

// dayLayout is the calendar-day key used for usage counters
const dayLayout = "2006-01-02"

// Clock supplies the current time. Tests substitute a fake to move across
// day boundaries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}
