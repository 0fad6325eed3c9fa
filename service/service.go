// Package service implements waypoint.Locator on top of the storage engine.
package service

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/ryansann/waypoint/engine"
	"github.com/ryansann/waypoint/geo"
	"github.com/ryansann/waypoint/pb"
	"github.com/sirupsen/logrus"
)

// Service maps remote operations onto engine calls.
type Service struct {
	log *logrus.Logger
	e   *engine.Engine
}

// New returns a Service using e.
func New(log *logrus.Logger, e *engine.Engine) *Service {
	return &Service{
		log: log,
		e:   e,
	}
}

// Put appends a sample for id.
func (s *Service) Put(id string, lat, lon float64) (*pb.Sample, error) {
	sample, err := s.e.Append(id, lat, lon)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"id": id, "timestamp": sample.GetTimestamp()}).Debug("put")

	return sample, nil
}

// Get returns the latest sample of id. An unknown id is not an error, it returns nil.
func (s *Service) Get(id string) (*pb.Sample, error) {
	sample, err := s.e.LastValue(id)
	if err != nil {
		if errors.Cause(err) == engine.ErrNotFound {
			s.log.WithField("id", id).Debug("get: not found")
			return nil, nil
		}
		return nil, err
	}

	return sample, nil
}

// History returns the samples of id in [start, end), ascending by timestamp.
func (s *Service) History(id string, start, end int64) ([]*pb.Sample, error) {
	samples, err := s.e.History(id, start, end)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].GetTimestamp() < samples[j].GetTimestamp()
	})

	s.log.WithFields(logrus.Fields{"id": id, "start": start, "end": end, "count": len(samples)}).Debug("history")

	return samples, nil
}

// Search returns the ids whose latest sample is within radius kilometers of (lat, lon), nearest first.
func (s *Service) Search(lat, lon, radius float64) ([]geo.Result, error) {
	lasts, err := s.e.AllLastValues()
	if err != nil {
		return nil, err
	}

	res := geo.Search(lasts, lat, lon, radius)

	s.log.WithFields(logrus.Fields{"lat": lat, "lon": lon, "radius": radius, "count": len(res)}).Debug("search")

	return res, nil
}
