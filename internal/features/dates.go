package features

import "time"

// DateFeatureColumns lists the calendar features in build order
var DateFeatureColumns = []string{
	"year",
	"month",
	"day",
	"dayofweek",
	"dayofyear",
	"is_mid_month",
	"is_leap_year",
	"week_of_month",
	"quarter",
}

// dateFeatures computes the calendar components for one observation date.
// Weekday follows ISO numbering, Monday is 1 and Sunday is 7.
func dateFeatures(d time.Time) map[string]float64 {
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7
	}

	isMidMonth := 0.0
	if d.Day() == 15 {
		isMidMonth = 1
	}
	isLeap := 0.0
	if isLeapYear(d.Year()) {
		isLeap = 1
	}

	return map[string]float64{
		"year":          float64(d.Year()),
		"month":         float64(int(d.Month())),
		"day":           float64(d.Day()),
		"dayofweek":     float64(weekday),
		"dayofyear":     float64(d.YearDay()),
		"is_mid_month":  isMidMonth,
		"is_leap_year":  isLeap,
		"week_of_month": float64((d.Day()-1)/7 + 1),
		"quarter":       float64((int(d.Month())-1)/3 + 1),
	}
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
