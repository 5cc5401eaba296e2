package websocket

import (
	"time"

	"go.uber.org/zap"
)

// IdleCleanupService disconnects dashboard clients that stopped talking to
// the server, such as tabs left open in the background
type IdleCleanupService struct {
	hub      *Hub
	maxIdle  time.Duration
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewIdleCleanupService creates a new idle cleanup service. The hub is
// checked every interval for clients idle longer than maxIdle.
func NewIdleCleanupService(hub *Hub, maxIdle, interval time.Duration, logger *zap.Logger) *IdleCleanupService {
	if interval <= 0 {
		interval = maxIdle / 2
	}
	return &IdleCleanupService{
		hub:      hub,
		maxIdle:  maxIdle,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *IdleCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Idle client cleanup started", zap.Duration("maxIdle", s.maxIdle))
}

// Stop gracefully stops the cleanup service
func (s *IdleCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Idle client cleanup stopped")
}

func (s *IdleCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *IdleCleanupService) runCleanup() {
	if closed := s.hub.closeIdle(s.maxIdle); closed > 0 {
		s.logger.Info("Closed idle clients", zap.Int("count", closed))
	}
}
