package shared

import "fmt"

// ForecastLockKey builds the redis key guarding recalculation of one
// profit centre and financial year.
func ForecastLockKey(profitCentreID int64, financialYear int) string {
	return fmt.Sprintf("forecast:pc:%d:fy:%d:lock", profitCentreID, financialYear)
}
