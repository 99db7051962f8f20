package domain

import "time"

// DepartureQuery identifies the departures to look up: one line at one stop place,
// starting at a point in time.
type DepartureQuery struct {
	StopID string `json:"stopId"` // e.g. NSR:StopPlace:19984
	Date   string `json:"date"`   // normalised start time sent upstream
	LineID string `json:"lineId"` // e.g. TEL:Line:8046
}

// StopPlace is the decoded upstream answer for a DepartureQuery.
type StopPlace struct {
	ID             string
	Name           string
	EstimatedCalls []EstimatedCall
}

// EstimatedCall is a predicted departure of a vehicle from the stop place.
type EstimatedCall struct {
	ExpectedDepartureTime time.Time
}

// DepartureTime is the projection returned to API callers.
type DepartureTime struct {
	ExpectedDepartureTime string `json:"expectedDepartureTime"` // HH:MM:SS local time
}
