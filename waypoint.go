// Package waypoint is a time-series point-location store. Clients append location samples
// for an id and later retrieve an id's latest sample, a time bounded history of its samples,
// or every id whose latest sample lies within a radius of a point.
package waypoint

import (
	"github.com/ryansann/waypoint/geo"
	"github.com/ryansann/waypoint/pb"
)

// Locator is the interface behind the remote operations. The transport only translates requests
// into Locator calls and results back into responses.
type Locator interface {
	// Put stores a sample for id at (lat, lon), the timestamp is assigned by the server.
	Put(id string, lat, lon float64) (*pb.Sample, error)
	// Get returns the latest sample of id, or nil if id has no samples.
	Get(id string) (*pb.Sample, error)
	// History returns the samples of id with start <= timestamp < end, ascending by timestamp.
	History(id string, start, end int64) ([]*pb.Sample, error)
	// Search returns every id whose latest sample lies within radius kilometers of (lat, lon), nearest first.
	Search(lat, lon, radius float64) ([]geo.Result, error)
}
