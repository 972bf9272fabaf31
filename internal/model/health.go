package model

import "time"

// Health is the self-reported state of a source.
type Health string

const (
	HealthAvailable   Health = "available"
	HealthDegraded    Health = "degraded"
	HealthUnavailable Health = "unavailable"
)

// Coverage summarizes what the local store holds.
type Coverage struct {
	Years    []int     `json:"years"`
	Rows     int64     `json:"rows"`
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}
