// Package session keeps per-browser state for the web UI.
package session

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soypete/safesound/pkg/audio"
)

// CookieName is the cookie carrying the session id.
const CookieName = "safesound_session"

var (
	// ErrNoAudio is returned when the microphone buffer is empty.
	ErrNoAudio = errors.New("no microphone audio captured")
	// ErrBufferFull is returned when frames would grow the microphone
	// buffer past its limit.
	ErrBufferFull = errors.New("microphone buffer full")
)

// Upload is the most recent uploaded file of a session.
type Upload struct {
	Path string
	Name string
}

// State is the mutable state of one session.
type State struct {
	ID string

	mu            sync.Mutex
	transcription string
	stats         *audio.Stats
	upload        *Upload
	pcm           []byte
	sampleRate    int
	channels      int
	lastSeen      time.Time
}

// AppendPCM adds little-endian 16-bit frames to the microphone buffer. A
// format change discards previously buffered audio. When limit is positive
// and the frames would take the buffer past limit bytes, nothing is appended
// and ErrBufferFull is returned.
func (s *State) AppendPCM(frames []byte, sampleRate, channels, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sampleRate != s.sampleRate || channels != s.channels {
		s.pcm = nil
		s.sampleRate = sampleRate
		s.channels = channels
	}
	if limit > 0 && len(s.pcm)+len(frames) > limit {
		return ErrBufferFull
	}
	s.pcm = append(s.pcm, frames...)
	return nil
}

// TakePCM returns and clears the microphone buffer.
func (s *State) TakePCM() (pcm []byte, sampleRate, channels int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pcm) == 0 {
		return nil, 0, 0, ErrNoAudio
	}
	pcm, sampleRate, channels = s.pcm, s.sampleRate, s.channels
	s.pcm = nil
	return pcm, sampleRate, channels, nil
}

// ClearPCM drops any buffered microphone audio.
func (s *State) ClearPCM() {
	s.mu.Lock()
	s.pcm = nil
	s.mu.Unlock()
}

// BufferedBytes reports the size of the microphone buffer.
func (s *State) BufferedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pcm)
}

// SetResult records a finished transcription.
func (s *State) SetResult(text string, stats *audio.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcription = text
	s.stats = stats
}

// Result returns the last transcription and its stats.
func (s *State) Result() (string, *audio.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcription, s.stats
}

// SetUpload replaces the current upload and returns the previous one.
func (s *State) SetUpload(u *Upload) *Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.upload
	s.upload = u
	return prev
}

// CurrentUpload returns the current upload without clearing it.
func (s *State) CurrentUpload() *Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload
}

// TakeUpload returns and clears the current upload.
func (s *State) TakeUpload() *Upload {
	return s.SetUpload(nil)
}

// Store holds sessions in memory.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*State),
		now:      time.Now,
	}
}

// Get returns the session for the request, creating one and setting the
// cookie when the request has none or an unknown id.
func (st *Store) Get(w http.ResponseWriter, r *http.Request) *State {
	if c, err := r.Cookie(CookieName); err == nil {
		if s := st.Lookup(c.Value); s != nil {
			return s
		}
	}

	s := st.create()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// Lookup returns an existing session and marks it as seen.
func (st *Store) Lookup(id string) *State {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.lastSeen = st.now()
	s.mu.Unlock()
	return s
}

func (st *Store) create() *State {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := &State{ID: uuid.NewString(), lastSeen: st.now()}
	st.sessions[s.ID] = s
	return s
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Drain removes and returns every session.
func (st *Store) Drain() []*State {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := make([]*State, 0, len(st.sessions))
	for id, s := range st.sessions {
		delete(st.sessions, id)
		removed = append(removed, s)
	}
	return removed
}

// Sweep removes sessions idle for longer than maxIdle and returns them so
// callers can release their uploads.
func (st *Store) Sweep(maxIdle time.Duration) []*State {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := st.now().Add(-maxIdle)
	var removed []*State
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			removed = append(removed, s)
		}
	}
	return removed
}
