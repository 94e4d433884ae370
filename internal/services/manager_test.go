package services

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"eyetrack-go/internal/bridge"
	"eyetrack-go/internal/config"
	"eyetrack-go/internal/display"
	"eyetrack-go/internal/experiment"
	"eyetrack-go/internal/models"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/stimuli"
	"eyetrack-go/internal/testutil"
	"eyetrack-go/internal/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type finished struct {
	id, status, message string
	run, skipped        int
}

type fakeStore struct {
	mu        sync.Mutex
	createErr error
	created   []*models.Session
	finished  []finished
	records   []experiment.Record
}

func (f *fakeStore) CreateSession(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, s)
	return nil
}

func (f *fakeStore) FinishSession(_ context.Context, id, status, message string, run, skipped int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, finished{id, status, message, run, skipped})
	return nil
}

func (f *fakeStore) Recorder(string) experiment.Recorder {
	return experiment.RecorderFunc(func(_ context.Context, r experiment.Record) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.records = append(f.records, r)
		return nil
	})
}

func (f *fakeStore) lastFinished() finished {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finished) == 0 {
		return finished{}
	}
	return f.finished[len(f.finished)-1]
}

func testDesign(trials []stimuli.Row) *Design {
	return &Design{
		Trials:     trials,
		Options:    options.Defaults(),
		Translator: translate.Default(),
		Resolve:    stimuli.URLResolver("/stimuli/"),
	}
}

func listRows() []stimuli.Row {
	var rows []stimuli.Row
	for i := 0; i < 8; i++ {
		rows = append(rows, stimuli.Row{
			"id":       i,
			"list":     i % 2,
			"block":    i / 4,
			"picture1": "/stimuli/a.png",
			"picture2": "/stimuli/b.png",
			"audio":    "/stimuli/a.mp3",
		})
	}
	return rows
}

func newManager(t *testing.T, d *Design, store *fakeStore) *Manager {
	t.Helper()
	m := NewManager(d, store, nil, zap.NewNop())
	m.NewRand = func() *rand.Rand { return rand.New(rand.NewSource(3)) }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	})
	return m
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestCreateRunsEmptyTimeline(t *testing.T) {
	store := &fakeStore{}
	m := newManager(t, testDesign(nil), store)

	s, err := m.Create(context.Background(), "p-01")
	require.NoError(t, err)
	waitDone(t, s)

	snap := s.Status()
	assert.Equal(t, "completed", snap.Status)
	assert.True(t, snap.Finished)
	assert.Equal(t, "p-01", snap.ParticipantID)
	assert.Equal(t, finished{id: s.ID, status: "completed"}, store.lastFinished())

	// Commands queued before the bridge closed are still delivered.
	cmds, err := s.Bridge.Poll(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, display.KindBlank, cmds[0].Screen.Kind)
	assert.Contains(t, cmds[0].Screen.Assets, "/stimuli/sound_check.mp3")
	assert.Equal(t, display.KindFinished, cmds[1].Screen.Kind)
	assert.Equal(t, translate.Default().T(translate.FinishedTitle), cmds[1].Screen.Title)
}

func TestCreateAssignsGroupAndOrder(t *testing.T) {
	store := &fakeStore{}
	d := testDesign(listRows())
	d.GroupField = "list"
	d.ShuffleFields = []string{"block"}
	m := newManager(t, d, store)

	s, err := m.Create(context.Background(), "p-02")
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	rec := store.created[0]

	assert.Equal(t, s.ID, rec.ID)
	assert.Equal(t, models.SessionRunning, rec.Status)
	require.Len(t, rec.TrialOrder, 4)

	var got []int
	for _, i := range rec.TrialOrder {
		assert.Equal(t, rec.Group, []string{"0", "1"}[d.Trials[i]["list"].(int)])
		got = append(got, int(i))
	}
	sort.Ints(got)
	if rec.Group == "0" {
		assert.Equal(t, []int{0, 2, 4, 6}, got)
	} else {
		assert.Equal(t, []int{1, 3, 5, 7}, got)
	}

	// Blocks stay contiguous.
	first := d.Trials[rec.TrialOrder[0]]["block"]
	assert.Equal(t, first, d.Trials[rec.TrialOrder[1]]["block"])
	assert.Equal(t, "running", s.Status().Status)
}

func TestCancelAbortsSession(t *testing.T) {
	store := &fakeStore{}
	m := newManager(t, testDesign(listRows()), store)

	s, err := m.Create(context.Background(), "p-03")
	require.NoError(t, err)
	require.NoError(t, m.Cancel(s.ID))
	waitDone(t, s)

	assert.Equal(t, models.SessionAborted, s.Status().Status)
	assert.Equal(t, models.SessionAborted, store.lastFinished().status)

	_, err = s.Bridge.Poll(context.Background(), 1<<40, 0)
	assert.ErrorIs(t, err, bridge.ErrClosed)
}

func TestSweepExpiresAndForgets(t *testing.T) {
	store := &fakeStore{}
	m := newManager(t, testDesign(listRows()), store)
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return stamp }

	s, err := m.Create(context.Background(), "p-04")
	require.NoError(t, err)

	expired, removed := m.Sweep(time.Now(), time.Hour)
	assert.Zero(t, expired+removed)

	expired, removed = m.Sweep(time.Now().Add(2*time.Hour), time.Hour)
	assert.Equal(t, 1, expired)
	assert.Zero(t, removed)
	waitDone(t, s)
	assert.Equal(t, models.SessionExpired, s.Status().Status)

	_, removed = m.Sweep(stamp.Add(30*time.Minute), time.Hour)
	assert.Zero(t, removed)
	_, removed = m.Sweep(stamp.Add(2*time.Hour), time.Hour)
	assert.Equal(t, 1, removed)

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Zero(t, m.Len())
}

func TestUnknownSession(t *testing.T) {
	m := newManager(t, testDesign(nil), &fakeStore{})
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.ErrorIs(t, m.Cancel("nope"), ErrUnknownSession)
}

func TestCreateStoreFailure(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	m := newManager(t, testDesign(listRows()), store)

	_, err := m.Create(context.Background(), "p-05")
	assert.ErrorContains(t, err, "db down")
	assert.Zero(t, m.Len())
}

func TestShutdownStopsSessions(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(testDesign(listRows()), store, nil, zap.NewNop())

	s, err := m.Create(context.Background(), "p-06")
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))
	waitDone(t, s)
	assert.Equal(t, models.SessionAborted, s.Status().Status)

	_, err = m.Create(context.Background(), "p-07")
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestReaperExpiresIdleSessions(t *testing.T) {
	store := &fakeStore{}
	m := newManager(t, testDesign(listRows()), store)

	s, err := m.Create(context.Background(), "p-08")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewReaper(zap.NewNop(), m, 0, 5*time.Millisecond).Start(ctx)

	require.NoError(t, testutil.Poll(ctx, func() bool {
		return s.Status().Status == models.SessionExpired
	}, 2*time.Second, 5*time.Millisecond))
}

func TestLoadDesign(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "data", name), []byte(content), 0o644))
	}
	write("trials.csv", "id,list,picture1,picture2,audio\n1,a,cat.png,dog.png,cat.mp3\n2,b,dog.png,cat.png,dog.mp3\n")
	write("practice.csv", "id,picture1,picture2,audio\n9,x.png,y.png,x.mp3\n")
	write("messages.yaml", "experiment_finished_title: Danke\n")

	cfg := &config.Config{
		Data: config.DataConfig{
			StimuliURL:         "/media",
			TrialsFile:         "data/trials.csv",
			PracticeFile:       "data/practice.csv",
			TranslationsFile:   "data/messages.yaml",
			GroupField:         "list",
			InitialCalibration: true,
		},
		Experiment: map[string]any{
			"custom_calibration_target": "star.png",
			"maximum_tries":             5,
		},
	}
	d, err := LoadDesign(root, cfg)
	require.NoError(t, err)

	require.Len(t, d.Trials, 2)
	require.Len(t, d.Practice, 1)
	assert.Equal(t, "/media/cat.png", d.Trials[0]["picture1"])
	assert.Equal(t, "/media/star.png", d.TargetImage)
	assert.Equal(t, 5, d.Options.MaximumTries)
	assert.Equal(t, "list", d.GroupField)
	assert.True(t, d.InitialCalibration)
	assert.Equal(t, "Danke", d.Translator.T(translate.FinishedTitle))

	cfg.Experiment = map[string]any{"maximum_tries": "lots"}
	_, err = LoadDesign(root, cfg)
	assert.Error(t, err)

	cfg.Experiment = nil
	cfg.Data.TrialsFile = "data/missing.csv"
	_, err = LoadDesign(root, cfg)
	assert.ErrorContains(t, err, "failed to load trials")
}
