package presence

import (
	"log"
	"sync"

	"dm-service/internal/models"
)

// Session is a live push connection for one participant.
type Session interface {
	ID() string
	Send(event models.PushEvent) error
}

// Registry maps participant ids to their open push session. It is the only
// shared mutable in-memory structure and is internally synchronized; one
// live session per participant at a time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register stores the session for a participant, replacing any previous one,
// and broadcasts a participant-online notice to everyone else.
func (r *Registry) Register(participantID string, s Session) {
	r.mu.Lock()
	r.sessions[participantID] = s
	others := r.othersLocked(participantID)
	r.mu.Unlock()

	notify(others, models.PushEvent{Type: models.EventParticipantOnline, ParticipantID: participantID})
}

// Unregister removes the mapping only when the stored session is the
// caller's own, so a stale disconnect never clobbers a newer connection.
func (r *Registry) Unregister(participantID string, s Session) {
	r.mu.Lock()
	current, ok := r.sessions[participantID]
	if !ok || current.ID() != s.ID() {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, participantID)
	others := r.othersLocked(participantID)
	r.mu.Unlock()

	notify(others, models.PushEvent{Type: models.EventParticipantOffline, ParticipantID: participantID})
}

// Lookup returns the live session for a participant, if any. Absence is a
// normal outcome, not a failure.
func (r *Registry) Lookup(participantID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[participantID]
	return s, ok
}

// Count reports the number of connected participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) othersLocked(except string) []Session {
	others := make([]Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id != except {
			others = append(others, s)
		}
	}
	return others
}

func notify(sessions []Session, event models.PushEvent) {
	for _, s := range sessions {
		if err := s.Send(event); err != nil {
			log.Printf("presence broadcast failed conn=%s: %v", s.ID(), err)
		}
	}
}
