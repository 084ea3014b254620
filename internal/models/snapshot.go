package models

import "time"

type Snapshot struct {
	ID           int64     `json:"id"`
	Identifier   string    `json:"identifier"`
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	Node         string    `json:"node"`
	MemoryMB     int64     `json:"memory_mb"`
	DiskMB       int64     `json:"disk_mb"`
	CPUPercent   int64     `json:"cpu_percent"`
	Suspended    bool      `json:"suspended"`
	Installing   bool      `json:"installing"`
	Transferring bool      `json:"transferring"`
	RecordedAt   time.Time `json:"recorded_at"`
}
