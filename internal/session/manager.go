package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/mockinterview/internal/interview"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

// Session is a point-in-time copy of one interview session.
type Session struct {
	ID             string             `json:"session_id"`
	UserID         string             `json:"user_id,omitempty"`
	Status         Status             `json:"status"`
	ResumeChars    int                `json:"resume_chars"`
	StartedAt      time.Time          `json:"started_at"`
	LastActivityAt time.Time          `json:"last_activity_at"`
	Interview      interview.Snapshot `json:"interview"`
}

// entry owns the mutable state of one session. mu serializes round
// operations, which may block on inference for a long time.
type entry struct {
	mu             sync.Mutex
	id             string
	userID         string
	status         Status
	resumeText     string
	round          *interview.Round
	startedAt      time.Time
	lastActivityAt time.Time
}

func (e *entry) view() *Session {
	return &Session{
		ID:             e.id,
		UserID:         e.userID,
		Status:         e.status,
		ResumeChars:    len([]rune(e.resumeText)),
		StartedAt:      e.startedAt,
		LastActivityAt: e.lastActivityAt,
		Interview:      e.round.Snapshot(),
	}
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	inactivityTimeout time.Duration
	maxQuestions      int
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration, maxQuestions int) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
		maxQuestions:      maxQuestions,
	}
}

func (m *Manager) InactivityTimeout() time.Duration {
	return m.inactivityTimeout
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create starts a session around already extracted resume text.
func (m *Manager) Create(userID, resumeText string) *Session {
	now := time.Now().UTC()
	e := &entry{
		id:             uuid.NewString(),
		userID:         userID,
		status:         StatusActive,
		resumeText:     resumeText,
		round:          interview.NewRound(m.maxQuestions),
		startedAt:      now,
		lastActivityAt: now,
	}

	m.mu.Lock()
	m.sessions[e.id] = e
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view()
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view(), nil
}

// Do runs fn with exclusive access to the session's round. Ended sessions
// return ErrEnded without calling fn.
func (m *Manager) Do(sessionID string, fn func(round *interview.Round, resumeText string) error) (*Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusActive {
		return e.view(), ErrEnded
	}
	err = fn(e.round, e.resumeText)
	e.lastActivityAt = time.Now().UTC()
	return e.view(), err
}

// Ask generates the next question for the session.
func (m *Manager) Ask(ctx context.Context, sessionID string, iv interview.Interviewer) (string, *Session, error) {
	var question string
	s, err := m.Do(sessionID, func(round *interview.Round, resumeText string) error {
		var err error
		question, err = round.Ask(ctx, iv, resumeText)
		return err
	})
	return question, s, err
}

// Answer evaluates an answer to the outstanding question.
func (m *Manager) Answer(ctx context.Context, sessionID string, iv interview.Interviewer, audio []byte) (interview.Evaluation, *Session, error) {
	var ev interview.Evaluation
	s, err := m.Do(sessionID, func(round *interview.Round, _ string) error {
		var err error
		ev, err = round.Answer(ctx, iv, audio)
		return err
	})
	return ev, s, err
}

func (m *Manager) Restart(sessionID string) (*Session, error) {
	return m.Do(sessionID, func(round *interview.Round, _ string) error {
		round.Restart()
		return nil
	})
}

func (m *Manager) Touch(sessionID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusEnded
	e.resumeText = ""
	e.lastActivityAt = time.Now().UTC()
	return e.view(), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	count := 0
	for _, e := range entries {
		if !e.mu.TryLock() {
			// Busy entries are mid-operation and therefore active.
			count++
			continue
		}
		if e.status == StatusActive {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, e := range m.sessions {
		if !e.mu.TryLock() {
			continue
		}
		switch {
		case e.status == StatusEnded && now.Sub(e.lastActivityAt) >= m.inactivityTimeout:
			delete(m.sessions, id)
		case e.status == StatusActive && now.Sub(e.lastActivityAt) >= m.inactivityTimeout:
			e.status = StatusEnded
			e.resumeText = ""
			e.lastActivityAt = now
			expired = append(expired, e.view())
		}
		e.mu.Unlock()
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
