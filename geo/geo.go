// Package geo provides great-circle distances and radius search over samples.
package geo

import (
	"math"
	"sort"

	"github.com/ryansann/waypoint/pb"
)

// EarthRadius is the radius in kilometers used for haversine distances.
const EarthRadius = 6372.8

// Result is a sample and its distance in kilometers from a query point.
type Result struct {
	Sample   *pb.Sample
	Distance float64
}

// Distance returns the haversine distance in kilometers between two points given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dlon/2), 2)

	return 2 * EarthRadius * math.Asin(math.Sqrt(a))
}

// Search returns the samples within radius kilometers of (lat, lon), nearest first.
// Samples at equal distances keep their input order.
func Search(samples []*pb.Sample, lat, lon, radius float64) []Result {
	res := make([]Result, 0)

	for _, s := range samples {
		d := Distance(lat, lon, s.GetLatitude(), s.GetLongitude())
		if d <= radius {
			res = append(res, Result{Sample: s, Distance: d})
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Distance < res[j].Distance
	})

	return res
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
