package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"eyetrack-go/internal/config"
	"eyetrack-go/internal/experiment"
	"eyetrack-go/internal/models"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/repository"
	"eyetrack-go/internal/services"
	"eyetrack-go/internal/stimuli"
	"eyetrack-go/internal/translate"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type memStore struct{}

func (memStore) CreateSession(context.Context, *models.Session) error { return nil }

func (memStore) FinishSession(context.Context, string, string, string, int, int, time.Time) error {
	return nil
}

func (memStore) Recorder(string) experiment.Recorder {
	return experiment.RecorderFunc(func(context.Context, experiment.Record) error { return nil })
}

type oneSession struct{ s models.Session }

func (o oneSession) ListSessions(context.Context, int) ([]models.Session, error) {
	return []models.Session{o.s}, nil
}

func (o oneSession) GetSession(_ context.Context, id string) (*models.Session, error) {
	if id != o.s.ID {
		return nil, gorm.ErrRecordNotFound
	}
	return &o.s, nil
}

func (oneSession) GetSessionResults(context.Context, string) ([]models.StepResult, error) {
	return nil, nil
}

func (oneSession) GetValidationAttempts(context.Context, string) ([]models.ValidationAttempt, error) {
	return nil, nil
}

func (oneSession) GetPrecisionTimeline(context.Context, string) ([]repository.PrecisionDataPoint, error) {
	return nil, nil
}

func (oneSession) GetTrialOutcomes(context.Context, string) ([]repository.TrialOutcomeDataPoint, error) {
	return nil, nil
}

var csrfMeta = regexp.MustCompile(`name="csrf-token" content="([^"]+)"`)

func setup(t *testing.T, rateLimit uint) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conf, err := config.Load(t.TempDir())
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("Secret-1"), bcrypt.MinCost)
	require.NoError(t, err)
	conf.Admin.PasswordHash = string(hash)
	conf.Server.RateLimit = rateLimit
	conf.Sessions.PollTimeout = 50 * time.Millisecond
	conf.Data.StimuliDir = ""
	config.Conf = conf

	m := services.NewManager(&services.Design{
		Options:    options.Defaults(),
		Translator: translate.Default(),
		Resolve:    stimuli.URLResolver("/stimuli/"),
	}, memStore{}, nil, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	})
	return Setup(zap.NewNop(), m, oneSession{models.Session{ID: "s-1", ParticipantID: "p-01"}})
}

type browser struct {
	engine  *gin.Engine
	cookies []*http.Cookie
	token   string
}

func (b *browser) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set(csrfTokenHeaderKey, b.token)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	b.engine.ServeHTTP(w, req)
	for _, set := range w.Result().Cookies() {
		b.keep(set)
	}
	return w
}

// keep stores a cookie, replacing any earlier one of the same name.
func (b *browser) keep(set *http.Cookie) {
	for i, c := range b.cookies {
		if c.Name == set.Name {
			b.cookies[i] = set
			return
		}
	}
	b.cookies = append(b.cookies, set)
}

// open loads the participant page and picks up its CSRF token.
func (b *browser) open(t *testing.T) {
	t.Helper()
	w := b.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	m := csrfMeta.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2)
	b.token = m[1]
}

func TestHealthAndMetrics(t *testing.T) {
	r := setup(t, 10)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/experiment.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParticipantPageSetsPolicy(t *testing.T) {
	b := &browser{engine: setup(t, 10)}
	w := b.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	csp := w.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "'nonce-")
	assert.Regexp(t, `<script nonce="[^"]+" src="/static/experiment.js">`, w.Body.String())
	assert.NotEmpty(t, b.cookies)
}

func TestPageLoadSetsSessionCookieOnce(t *testing.T) {
	r := setup(t, 10)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Values("Set-Cookie"), 1)

	b := &browser{engine: r}
	b.open(t)
	w = b.do(http.MethodGet, "/", "")
	assert.Empty(t, w.Header().Values("Set-Cookie"))
	assert.Contains(t, w.Body.String(), b.token)
}

func TestCreateSessionNeedsCSRFToken(t *testing.T) {
	b := &browser{engine: setup(t, 10)}
	b.open(t)

	token := b.token
	b.token = ""
	assert.Equal(t, http.StatusForbidden, b.do(http.MethodPost, "/api/sessions", `{"participant_id":"p-01"}`).Code)

	b.token = "forged"
	assert.Equal(t, http.StatusForbidden, b.do(http.MethodPost, "/api/sessions", `{"participant_id":"p-01"}`).Code)

	b.token = token
	w := b.do(http.MethodPost, "/api/sessions", `{"participant_id":"p-01"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSessionRoutesCheckOwnership(t *testing.T) {
	r := setup(t, 10)
	owner := &browser{engine: r}
	owner.open(t)

	w := owner.do(http.MethodPost, "/api/sessions", `{"participant_id":"p-01"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := regexp.MustCompile(`"id":"([^"]+)"`).FindStringSubmatch(w.Body.String())
	require.Len(t, id, 2)

	assert.Equal(t, http.StatusOK, owner.do(http.MethodGet, "/api/sessions/"+id[1]+"/status", "").Code)

	stranger := &browser{engine: r}
	stranger.open(t)
	assert.Equal(t, http.StatusForbidden, stranger.do(http.MethodGet, "/api/sessions/"+id[1]+"/status", "").Code)
	assert.Equal(t, http.StatusForbidden, stranger.do(http.MethodPost, "/api/sessions/"+id[1]+"/events", `{"events":[]}`).Code)
}

func TestCreateSessionIsRateLimited(t *testing.T) {
	b := &browser{engine: setup(t, 1)}
	b.open(t)

	assert.Equal(t, http.StatusCreated, b.do(http.MethodPost, "/api/sessions", `{"participant_id":"p-01"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, b.do(http.MethodPost, "/api/sessions", `{"participant_id":"p-02"}`).Code)
}

func TestAdminRequiresCredentials(t *testing.T) {
	r := setup(t, 10)
	get := func(user, password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/sessions/s-1/summary", nil)
		if user != "" {
			req.SetBasicAuth(user, password)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	assert.Equal(t, http.StatusUnauthorized, get("admin", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, get("root", "Secret-1").Code)

	w = get("admin", "Secret-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"participantId":"p-01"`)
}
