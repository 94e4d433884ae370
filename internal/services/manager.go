package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"eyetrack-go/internal/bridge"
	"eyetrack-go/internal/calibration"
	"eyetrack-go/internal/experiment"
	"eyetrack-go/internal/metrics"
	"eyetrack-go/internal/models"
	"eyetrack-go/internal/phase"
	"eyetrack-go/internal/repository"
	"eyetrack-go/internal/stimuli"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrShuttingDown   = errors.New("session manager is shutting down")

	errExpired = errors.New("session expired")
	errAborted = errors.New("session aborted")
)

// Store persists sessions and their step records.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	FinishSession(ctx context.Context, id, status, message string, trialsRun, skipped int, at time.Time) error
	Recorder(sessionID string) experiment.Recorder
}

// DBStore is the Store backed by the repository package.
type DBStore struct{}

func (DBStore) CreateSession(ctx context.Context, s *models.Session) error {
	return repository.CreateSession(ctx, s)
}

func (DBStore) FinishSession(ctx context.Context, id, status, message string, trialsRun, skipped int, at time.Time) error {
	return repository.FinishSession(ctx, id, status, message, trialsRun, skipped, at)
}

func (DBStore) Recorder(sessionID string) experiment.Recorder {
	return repository.NewRecorder(sessionID)
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	TrialsRun     int    `json:"trials_run"`
	TrialsSkipped int    `json:"trials_skipped"`
	Finished      bool   `json:"finished"`
}

// Session is one running experiment and the bridge its browser talks to.
type Session struct {
	ID            string
	ParticipantID string
	Group         string
	Bridge        *bridge.Bridge

	cancel context.CancelCauseFunc
	done   chan struct{}

	mu         sync.Mutex
	status     string
	message    string
	trialsRun  int
	skipped    int
	finishedAt time.Time
}

// Done is closed once the experiment goroutine has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.ID,
		ParticipantID: s.ParticipantID,
		Status:        s.status,
		Message:       s.message,
		TrialsRun:     s.trialsRun,
		TrialsSkipped: s.skipped,
		Finished:      !s.finishedAt.IsZero(),
	}
}

func (s *Session) finish(status, message string, run, skipped int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.message = message
	s.trialsRun = run
	s.skipped = skipped
	s.finishedAt = at
}

// Manager owns the running sessions.
type Manager struct {
	store   Store
	metrics *metrics.Collectors
	log     *zap.Logger

	// Now and NewRand are replaceable in tests.
	Now     func() time.Time
	NewRand func() *rand.Rand

	base     context.Context
	stop     context.CancelCauseFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	design   *Design
	sessions map[string]*Session
}

func NewManager(design *Design, store Store, m *metrics.Collectors, log *zap.Logger) *Manager {
	base, stop := context.WithCancelCause(context.Background())
	return &Manager{
		store:    store,
		metrics:  m,
		log:      log,
		Now:      time.Now,
		NewRand:  func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) },
		base:     base,
		stop:     stop,
		design:   design,
		sessions: make(map[string]*Session),
	}
}

// SetDesign replaces the design used by sessions created from now on.
func (m *Manager) SetDesign(d *Design) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.design = d
}

func (m *Manager) Design() *Design {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.design
}

// Create assigns the participant a counterbalancing group and trial order,
// stores the session and starts its experiment.
func (m *Manager) Create(ctx context.Context, participantID string) (*Session, error) {
	if m.base.Err() != nil {
		return nil, ErrShuttingDown
	}
	d := m.Design()
	rng := m.NewRand()

	group, order := d.Order(rng)

	trials := make([]stimuli.Row, len(order))
	for i, j := range order {
		trials[i] = d.Trials[j].Clone()
	}
	practice := make([]stimuli.Row, len(d.Practice))
	practiceOrder := make(pq.Int64Array, len(d.Practice))
	for i, row := range d.Practice {
		practice[i] = row.Clone()
		practiceOrder[i] = int64(i)
	}
	trialOrder := make(pq.Int64Array, len(order))
	for i, j := range order {
		trialOrder[i] = int64(j)
	}

	rec := &models.Session{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		TrialOrder:    trialOrder,
		PracticeOrder: practiceOrder,
		Status:        models.SessionRunning,
		CreatedAt:     m.Now(),
	}
	if group != nil {
		rec.Group = fmt.Sprint(group)
	}
	if err := m.store.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	log := m.log.With(zap.String("session", rec.ID))
	b := bridge.New(log, m.metrics)
	manifest := stimuli.BuildManifest(d.Resolve, practice, trials)
	exp := experiment.New(experiment.Deps{
		Tracker:     b,
		Display:     b,
		Audio:       b,
		State:       calibration.NewState(),
		Translator:  d.Translator,
		Options:     d.Options,
		TargetImage: d.TargetImage,
		Recorder:    m.store.Recorder(rec.ID),
		Metrics:     m.metrics,
		Log:         log,
	}, experiment.Timeline{
		InitialCalibration: d.InitialCalibration,
		Practice:           practice,
		Trials:             trials,
		Assets:             append(manifest.Images, manifest.Audio...),
	})

	sctx, cancel := context.WithCancelCause(m.base)
	s := &Session{
		ID:            rec.ID,
		ParticipantID: participantID,
		Group:         rec.Group,
		Bridge:        b,
		cancel:        cancel,
		done:          make(chan struct{}),
		status:        models.SessionRunning,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.SessionStarted()
	log.Info("Session started",
		zap.String("participant", participantID),
		zap.String("group", rec.Group),
		zap.Int("trials", len(trials)),
		zap.Int("practice", len(practice)),
	)

	m.wg.Add(1)
	go m.run(sctx, s, exp, log)
	return s, nil
}

func (m *Manager) run(ctx context.Context, s *Session, exp *experiment.Experiment, log *zap.Logger) {
	defer m.wg.Done()
	defer close(s.done)
	defer s.Bridge.Close()
	defer s.cancel(nil)

	out, err := exp.Run(ctx)
	status := out.Status.String()
	switch {
	case err == nil:
	case errors.Is(context.Cause(ctx), errExpired):
		status = models.SessionExpired
	case ctx.Err() != nil:
		status = models.SessionAborted
	default:
		status = models.SessionError
		log.Error("Session stopped on error", zap.Error(err))
	}
	if err == nil && out.Status == phase.Terminated {
		log.Info("Session terminated", zap.String("message", out.Message))
	}

	now := m.Now()
	s.finish(status, out.Message, out.TrialsRun, out.Skipped, now)
	m.metrics.SessionFinished(status)

	// The session context is gone by now; the final write gets its own.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.FinishSession(saveCtx, s.ID, status, out.Message, out.TrialsRun, out.Skipped, now); err != nil {
		log.Error("Failed to store session outcome", zap.Error(err))
	}
	log.Info("Session finished",
		zap.String("status", status),
		zap.Int("trials_run", out.TrialsRun),
		zap.Int("skipped", out.Skipped),
	)
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Cancel aborts a running session. Cancelling a finished session is a no-op.
func (m *Manager) Cancel(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.cancel(errAborted)
	return nil
}

// Sweep expires running sessions whose browser has been silent for longer
// than idle, and forgets finished sessions after the same delay.
func (m *Manager) Sweep(now time.Time, idle time.Duration) (expired, removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.Lock()
		finishedAt := s.finishedAt
		s.mu.Unlock()

		if finishedAt.IsZero() {
			if now.Sub(s.Bridge.LastSeen()) > idle {
				s.cancel(errExpired)
				expired++
			}
			continue
		}
		if now.Sub(finishedAt) > idle {
			delete(m.sessions, id)
			removed++
		}
	}
	return expired, removed
}

// Len is the number of sessions still held, finished or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown aborts every session and waits for their goroutines.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop(errAborted)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
