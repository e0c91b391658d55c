package session

import (
	"sort"
	"sync"
	"time"
)

// Registry tracks live sessions so the gateway can enumerate and tear them
// down.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove unregisters a session by ID. Unknown IDs are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session with the given ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every live session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Info is one session's row in the debug snapshot.
type Info struct {
	ID             string    `json:"id"`
	Issue          string    `json:"issue"`
	Mode           string    `json:"mode"`
	Phase          string    `json:"phase"`
	Status         string    `json:"status"`
	StepIndex      int       `json:"step_index"`
	TotalSteps     int       `json:"total_steps"`
	TTSProvider    string    `json:"tts_provider"`
	STTProvider    string    `json:"stt_provider"`
	SpeakingStream string    `json:"speaking_stream,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// Snapshot returns the state of every live session, ordered by creation
// time.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		st := s.State()
		infos = append(infos, Info{
			ID:             s.ID,
			Issue:          s.Issue,
			Mode:           s.Mode,
			Phase:          phaseFor(st.Status),
			Status:         string(st.Status),
			StepIndex:      st.CurrentStepIndex,
			TotalSteps:     st.TotalSteps,
			TTSProvider:    s.deps.Primary.Name(),
			STTProvider:    s.deps.Recognizer.Name(),
			SpeakingStream: s.ActiveSpeechID(),
			CreatedAt:      s.CreatedAt,
			LastActivity:   s.LastActivity(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}
