package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"eyetrack-go/internal/models"
	"eyetrack-go/internal/repository"
	"eyetrack-go/views"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResultsHandler struct {
	log   *zap.Logger
	store ResultsStore
	// MinPrecision draws the pass threshold on the precision chart.
	MinPrecision float64
}

func NewResultsHandler(log *zap.Logger, store ResultsStore, minPrecision float64) *ResultsHandler {
	return &ResultsHandler{log: log, store: store, MinPrecision: minPrecision}
}

func (h *ResultsHandler) ListSessions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	list, err := h.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, list)
}

type resultsResponse struct {
	Session            *models.Session            `json:"session"`
	Steps              []models.StepResult        `json:"steps"`
	ValidationAttempts []models.ValidationAttempt `json:"validation_attempts"`
}

func (h *ResultsHandler) ShowResults(c *gin.Context) {
	id := c.Param("id")
	session, ok := loadSession(c, h.log, h.store, id)
	if !ok {
		return
	}
	steps, err := h.store.GetSessionResults(c.Request.Context(), id)
	if err != nil {
		serverError(c, h.log, "Failed to get session results", id, err)
		return
	}
	attempts, err := h.store.GetValidationAttempts(c.Request.Context(), id)
	if err != nil {
		serverError(c, h.log, "Failed to get validation attempts", id, err)
		return
	}
	c.JSON(http.StatusOK, resultsResponse{Session: session, Steps: steps, ValidationAttempts: attempts})
}

// ShowCharts renders the precision and trial outcome charts of a session, or
// their echarts options with ?format=json.
func (h *ResultsHandler) ShowCharts(c *gin.Context) {
	id := c.Param("id")
	if _, ok := loadSession(c, h.log, h.store, id); !ok {
		return
	}
	precision, err := h.store.GetPrecisionTimeline(c.Request.Context(), id)
	if err != nil {
		serverError(c, h.log, "Failed to get precision timeline", id, err)
		return
	}
	outcomes, err := h.store.GetTrialOutcomes(c.Request.Context(), id)
	if err != nil {
		serverError(c, h.log, "Failed to get trial outcomes", id, err)
		return
	}

	precisionChart := generatePrecisionChart(precision, h.MinPrecision).JSON()
	outcomeChart := generateOutcomeChart(outcomes).JSON()

	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"precision": precisionChart, "outcomes": outcomeChart})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	err = views.Charts(c.Writer, views.ChartPage{
		Title: "Session " + id,
		Nonce: c.GetString("csp_nonce"),
		Charts: []views.Chart{
			{ID: "precision", Options: precisionChart},
			{ID: "outcomes", Options: outcomeChart},
		},
	})
	if err != nil {
		h.log.Error("Error rendering charts", zap.Error(err))
	}
}

func loadSession(c *gin.Context, log *zap.Logger, store ResultsStore, id string) (*models.Session, bool) {
	session, err := store.GetSession(c.Request.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown session"})
		return nil, false
	}
	if err != nil {
		serverError(c, log, "Failed to get session", id, err)
		return nil, false
	}
	return session, true
}

func serverError(c *gin.Context, log *zap.Logger, msg, id string, err error) {
	log.Error(msg, zap.Error(err), zap.String("session", id))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func generatePrecisionChart(data []repository.PrecisionDataPoint, minimum float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Validation Precision",
			Subtitle: "per attempt",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "value",
			Min:  0,
			Max:  100,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	attempts := make([]int, 0, len(data))
	items := make([]opts.LineData, 0, len(data))
	threshold := make([]opts.LineData, 0, len(data))
	for _, point := range data {
		attempts = append(attempts, point.Attempt)
		items = append(items, opts.LineData{Value: point.Precision, Name: point.Block})
		threshold = append(threshold, opts.LineData{Value: minimum})
	}

	line.SetXAxis(attempts).
		AddSeries("Precision", items).
		AddSeries("Minimum", threshold).
		SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}

func generateOutcomeChart(data []repository.TrialOutcomeDataPoint) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Trial Outcomes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	var statuses, blocks []string
	counts := make(map[string]map[string]int)
	for _, point := range data {
		if counts[point.Block] == nil {
			counts[point.Block] = make(map[string]int)
			blocks = append(blocks, point.Block)
		}
		if !contains(statuses, point.Status) {
			statuses = append(statuses, point.Status)
		}
		counts[point.Block][point.Status] += point.Count
	}
	sort.Strings(statuses)

	bar.SetXAxis(statuses)
	for _, block := range blocks {
		items := make([]opts.BarData, 0, len(statuses))
		for _, status := range statuses {
			items = append(items, opts.BarData{Value: counts[block][status]})
		}
		bar.AddSeries(block, items)
	}
	return bar
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
