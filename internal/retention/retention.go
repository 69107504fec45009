// Package retention sweeps rooms nobody has touched in a long time.
package retention

import (
	"log"
	"sync"
	"time"

	"github.com/codehive/backend/internal/db"
)

type Config struct {
	Interval time.Duration
	RoomTTL  time.Duration
}

func DefaultConfig(roomTTL time.Duration) Config {
	return Config{
		Interval: time.Hour,
		RoomTTL:  roomTTL,
	}
}

type Service struct {
	database *db.Database
	config   Config
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(database *db.Database, config Config) *Service {
	return &Service{
		database: database,
		config:   config,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Start() {
	if s.config.RoomTTL <= 0 {
		return
	}
	s.wg.Add(1)
	go s.run()
	log.Printf("Retention service started (interval: %v, room TTL: %v)",
		s.config.Interval, s.config.RoomTTL)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	cutoff := time.Now().Add(-s.config.RoomTTL)
	deleted, err := s.database.DeleteRoomsIdleSince(cutoff)
	if err != nil {
		log.Printf("Retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Retention: deleted %d idle rooms", deleted)
	}
}

// SweepNow runs one sweep immediately, for tests and admin tooling.
func (s *Service) SweepNow() {
	s.sweep()
}
