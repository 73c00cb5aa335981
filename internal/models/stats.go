package models

import "time"

type DailyStats struct {
	Date              time.Time               `json:"date"`
	Issued            int                     `json:"issued"`
	Finished          int                     `json:"finished"`
	Absent            int                     `json:"absent"`
	AvgWaitMinutes    float64                 `json:"avg_wait_minutes"`
	AvgServiceMinutes float64                 `json:"avg_service_minutes"`
	ByService         map[string]ServiceStats `json:"by_service"`
	ByStation         map[string]StationStats `json:"by_station"`
}

type ServiceStats struct {
	Issued         int     `json:"issued"`
	Finished       int     `json:"finished"`
	AvgWaitMinutes float64 `json:"avg_wait_minutes"`
}

type StationStats struct {
	Finished          int     `json:"finished"`
	AvgServiceMinutes float64 `json:"avg_service_minutes"`
}
