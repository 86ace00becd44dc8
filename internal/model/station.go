// Package model defines the station/reading records and their validation.
package model

import "time"

// Station represents a fixed monitoring location identified by coordinates.
type Station struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Longitude float64   `json:"lon"`
	Latitude  float64   `json:"lat"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StationID satisfies StationRef so a *Station can be passed wherever a
// station identifier is expected.
func (s *Station) StationID() int64 { return s.ID }

// StationAttrs carries raw station attributes prior to validation.
type StationAttrs struct {
	Name      string  `json:"name"`
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
}

// StationRef is anything that resolves to a station identifier: a resolved
// *Station or a bare StationID.
type StationRef interface {
	StationID() int64
}

// StationID is a raw station identifier usable as a StationRef.
type StationID int64

func (id StationID) StationID() int64 { return int64(id) }
