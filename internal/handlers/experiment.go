package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"eyetrack-go/internal/bridge"
	"eyetrack-go/internal/services"
	"eyetrack-go/internal/utils"
	"eyetrack-go/views"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionKey is the cookie session entry holding the experiment session the
// browser started.
const SessionKey = "experiment_session"

type ExperimentHandler struct {
	log         *zap.Logger
	manager     *services.Manager
	pollTimeout time.Duration
}

func NewExperimentHandler(log *zap.Logger, manager *services.Manager, pollTimeout time.Duration) *ExperimentHandler {
	return &ExperimentHandler{log: log, manager: manager, pollTimeout: pollTimeout}
}

func (h *ExperimentHandler) ShowPage(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	err := views.Participant(c.Writer, views.ParticipantPage{
		Title:      "Experiment",
		CSRFToken:  c.GetString("csrf_token"),
		Nonce:      c.GetString("csp_nonce"),
		PollWaitMS: h.pollTimeout.Milliseconds(),
	})
	if err != nil {
		h.log.Error("Error rendering participant page", zap.Error(err))
		c.String(http.StatusInternalServerError, "Error loading page")
	}
}

type createSessionRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

func (h *ExperimentHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
		return
	}
	if !utils.IsValidParticipantID(req.ParticipantID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid participant id"})
		return
	}

	s, err := h.manager.Create(c.Request.Context(), req.ParticipantID)
	if err != nil {
		if errors.Is(err, services.ErrShuttingDown) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down"})
			return
		}
		h.log.Error("Failed to create session", zap.Error(err), zap.String("participant", req.ParticipantID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not start session"})
		return
	}

	session := sessions.Default(c)
	session.Set(SessionKey, s.ID)
	if err := session.Save(); err != nil {
		h.log.Error("Failed to save cookie session", zap.Error(err))
		_ = h.manager.Cancel(s.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not start session"})
		return
	}
	c.JSON(http.StatusCreated, s.Status())
}

type commandsResponse struct {
	Commands []bridge.Command `json:"commands"`
	Finished bool             `json:"finished"`
}

// Commands long-polls for the commands queued after the `after` sequence
// number. A closed session answers 410 once its queue is drained.
func (h *ExperimentHandler) Commands(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid after"})
		return
	}

	cmds, err := s.Bridge.Poll(c.Request.Context(), after, h.pollTimeout)
	switch {
	case errors.Is(err, bridge.ErrClosed):
		c.JSON(http.StatusGone, commandsResponse{Commands: []bridge.Command{}, Finished: true})
		return
	case err != nil:
		// The browser went away mid-poll.
		h.log.Debug("Command poll ended", zap.String("session", s.ID), zap.Error(err))
		c.Status(http.StatusNoContent)
		return
	}
	if cmds == nil {
		cmds = []bridge.Command{}
	}
	c.JSON(http.StatusOK, commandsResponse{Commands: cmds})
}

type eventBatch struct {
	Events []bridge.Event `json:"events" binding:"required,dive"`
}

func (h *ExperimentHandler) Events(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var batch eventBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		h.log.Warn("Failed to bind events", zap.String("session", s.ID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid events"})
		return
	}
	c.JSON(http.StatusOK, s.Bridge.Dispatch(batch.Events))
}

func (h *ExperimentHandler) Status(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

func (h *ExperimentHandler) Cancel(c *gin.Context) {
	if err := h.manager.Cancel(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown session"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ExperimentHandler) session(c *gin.Context) (*services.Session, bool) {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown session"})
		return nil, false
	}
	return s, true
}
