package model

import "time"

// UsageRecord counts billable actions for one user on one day.
// Date uses the YYYY-MM-DD form so it can double as a range key.
type UsageRecord struct {
	UserID    string    `gorm:"primaryKey" dynamodbav:"user_id"`
	Date      string    `gorm:"primaryKey" dynamodbav:"usage_date"`
	Count     int       `dynamodbav:"usage_count"`
	UpdatedAt time.Time `dynamodbav:"updated_at,unixtime"`
}

const usageDateLayout = "2006-01-02"

// UsageDate formats t for use as a UsageRecord date key
func UsageDate(t time.Time) string {
	return t.UTC().Format(usageDateLayout)
}
