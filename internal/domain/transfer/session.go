package transfer

import (
	"context"
	"sync"
	"time"
)

// Session is one live transfer service bound to one catalog entry, one
// mode and one consumer.
type Session struct {
	ID         string
	Consumer   string
	CatalogID  string
	Name       string
	BundlePath string
	Mode       Mode
	URL        string
	StartedAt  time.Time

	handle  Handle
	release func()
	orch    *Orchestrator

	once     sync.Once
	closeErr error
	closed   chan struct{}
}

// SessionInfo is the serialisable view of a session
type SessionInfo struct {
	ID         string    `json:"id"`
	Consumer   string    `json:"consumer"`
	CatalogID  string    `json:"catalog_id"`
	Name       string    `json:"name"`
	BundlePath string    `json:"bundle_path"`
	Mode       Mode      `json:"mode"`
	URL        string    `json:"url"`
	StartedAt  time.Time `json:"started_at"`
}

// Info returns the serialisable view
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		Consumer:   s.Consumer,
		CatalogID:  s.CatalogID,
		Name:       s.Name,
		BundlePath: s.BundlePath,
		Mode:       s.Mode,
		URL:        s.URL,
		StartedAt:  s.StartedAt,
	}
}

// Close tears the session down. The service is shut down and the
// keep-active guard released exactly once, however many times Close runs.
func (s *Session) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.closeErr = s.orch.service.Shutdown(ctx, s.handle)
		s.release()
		s.orch.forget(s)
		close(s.closed)
	})
	return s.closeErr
}

// Done is closed once the session has been torn down
func (s *Session) Done() <-chan struct{} {
	return s.closed
}
