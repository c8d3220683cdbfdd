package database

import "gorm.io/datatypes"

// CacheEntry is one cached upstream or language-model payload.
type CacheEntry struct {
	Namespace string         `gorm:"primaryKey;size:16"`
	Endpoint  string         `gorm:"primaryKey;size:128"`
	CacheKey  string         `gorm:"primaryKey;size:64"`
	Payload   datatypes.JSON `gorm:"not null"`
	StoredAt  int64          `gorm:"not null;index"` // unix nanoseconds
}

func (CacheEntry) TableName() string {
	return "response_cache"
}

// RateLimitCounter is the number of upstream calls made on one UTC day.
type RateLimitCounter struct {
	Day          string `gorm:"primaryKey;size:10"`
	RequestCount int    `gorm:"not null;default:0"`
}

func (RateLimitCounter) TableName() string {
	return "rate_limits"
}
