package session

import (
	"time"

	"go.uber.org/zap"
)

// WatchdogStatus tells the client whether to offer the manual recovery action.
type WatchdogStatus struct {
	Loading           bool          `json:"loading"`
	Elapsed           time.Duration `json:"elapsed"`
	Timeout           time.Duration `json:"timeout"`
	RecoveryAvailable bool          `json:"recovery_available"`
}

func (s *Store) Watchdog() WatchdogStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := WatchdogStatus{
		Loading:           s.state.Loading,
		Timeout:           s.cfg.Get().WatchdogTimeout,
		RecoveryAvailable: s.state.RecoveryAvailable,
	}
	if st.Loading {
		st.Elapsed = s.clock.Now().Sub(s.state.LoadingSince)
	}
	return st
}

// startLoadingLocked raises the loading flag and arms the watchdog. The
// watchdog cancels nothing, it only flips RecoveryAvailable.
func (s *Store) startLoadingLocked() {
	now := s.clock.Now()
	s.state.Loading = true
	s.state.LoadingSince = now
	s.state.RecoveryAvailable = false
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	timeout := s.cfg.Get().WatchdogTimeout
	s.watchdog = s.clock.AfterFunc(timeout, func() {
		s.mu.Lock()
		if !s.state.Loading || !s.state.LoadingSince.Equal(now) {
			s.mu.Unlock()
			return
		}
		s.state.RecoveryAvailable = true
		s.mu.Unlock()
		s.log.Warn("session still loading past watchdog timeout", zap.Duration("timeout", timeout))
		s.publish()
	})
}

func (s *Store) stopLoadingLocked() {
	s.state.Loading = false
	s.state.LoadingSince = time.Time{}
	s.state.RecoveryAvailable = false
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}
