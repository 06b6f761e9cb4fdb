package models

// DashboardStats are status counters over every request. Total counts all
// requests regardless of status, so it always equals the sum of the buckets.
type DashboardStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Assigned  int `json:"assigned"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}
