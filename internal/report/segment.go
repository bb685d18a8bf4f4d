package report

import "time"

// Segments buckets reports into the two days covered by the daily email.
type Segments struct {
	TodayDate     string        `json:"today_date"`
	YesterdayDate string        `json:"yesterday_date"`
	Today         []DailyReport `json:"today"`
	Yesterday     []DailyReport `json:"yesterday"`
}

// Empty reports whether neither day had activity; the email is not sent then.
func (s Segments) Empty() bool {
	return len(s.Today) == 0 && len(s.Yesterday) == 0
}

// Segment splits reports by UTC day relative to now. Reports dated on or
// after the start of today go to Today, those from yesterday to Yesterday;
// older or unparseable dates are dropped.
func Segment(reports []DailyReport, now time.Time) Segments {
	now = now.UTC()
	startToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startYesterday := startToday.AddDate(0, 0, -1)

	seg := Segments{
		TodayDate:     startToday.Format(DateLayout),
		YesterdayDate: startYesterday.Format(DateLayout),
		Today:         []DailyReport{},
		Yesterday:     []DailyReport{},
	}

	for _, r := range reports {
		day, err := time.ParseInLocation(DateLayout, r.Date, time.UTC)
		if err != nil {
			continue
		}
		switch {
		case !day.Before(startToday):
			seg.Today = append(seg.Today, r)
		case !day.Before(startYesterday):
			seg.Yesterday = append(seg.Yesterday, r)
		}
	}
	return seg
}
