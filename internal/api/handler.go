package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carlosmarte/repometrics/internal/analysis"
	"github.com/carlosmarte/repometrics/internal/classifier"
	"github.com/carlosmarte/repometrics/internal/domain"
	apperrors "github.com/carlosmarte/repometrics/internal/errors"
	"github.com/carlosmarte/repometrics/internal/storage"
)

// Handler handles API requests
type Handler struct {
	store  storage.Storage
	tables map[string]classifier.RuleTable
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage) *Handler {
	return &Handler{
		store:  store,
		tables: classifier.BuiltinTables(),
	}
}

// GetReport returns the full derived report for a source
// GET /api/v1/sources/:owner/:repo/report
func (h *Handler) GetReport(c *gin.Context) {
	source := sourceParam(c)
	timeRange := parseTimeRange(c)

	records, err := h.store.GetRecords(c.Request.Context(), source, parseKind(c), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	report := analysis.BuildReport(source, records, timeRange,
		[]analysis.KeyFunc{analysis.ByActor(), analysis.ByRepo(), analysis.ByKind()},
		tableList(h.tables))

	c.JSON(http.StatusOK, gin.H{
		"data": report,
	})
}

// GetSummary returns per-group statistics for a source
// GET /api/v1/sources/:owner/:repo/summary
func (h *Handler) GetSummary(c *gin.Context) {
	source := sourceParam(c)
	timeRange := parseTimeRange(c)
	groupBy := c.DefaultQuery("group_by", "actor")

	var keyFn analysis.KeyFunc
	switch groupBy {
	case "actor":
		keyFn = analysis.ByActor()
	case "repo":
		keyFn = analysis.ByRepo()
	case "kind":
		keyFn = analysis.ByKind()
	case "period":
		keyFn = analysis.ByPeriod(timeRange)
	default:
		respondError(c, apperrors.NewBadRequestError("group_by must be one of: actor, repo, kind, period"))
		return
	}

	records, err := h.store.GetRecords(c.Request.Context(), source, parseKind(c), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	report := analysis.BuildReport(source, records, timeRange, []analysis.KeyFunc{keyFn}, nil)

	c.JSON(http.StatusOK, gin.H{
		"data": report.Groups[keyFn.Name],
	})
}

// GetTrends returns period trends for a source
// GET /api/v1/sources/:owner/:repo/trends
func (h *Handler) GetTrends(c *gin.Context) {
	source := sourceParam(c)
	timeRange := parseTimeRange(c)

	records, err := h.store.GetRecords(c.Request.Context(), source, parseKind(c), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	report := analysis.BuildReport(source, records, timeRange, nil, nil)

	c.JSON(http.StatusOK, gin.H{
		"data": report.Trends,
	})
}

// GetClassifications returns per-record classifications for a source
// GET /api/v1/sources/:owner/:repo/classifications
func (h *Handler) GetClassifications(c *gin.Context) {
	source := sourceParam(c)
	timeRange := parseTimeRange(c)

	tables := tableList(h.tables)
	if name := c.Query("table"); name != "" {
		table, ok := h.tables[name]
		if !ok {
			respondError(c, apperrors.NewBadRequestError("unknown rule table: "+name))
			return
		}
		tables = []classifier.RuleTable{table}
	}

	records, err := h.store.GetRecords(c.Request.Context(), source, parseKind(c), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	report := analysis.BuildReport(source, records, timeRange, nil, tables)

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"category_counts": report.CategoryCounts,
			"classifications": report.Classifications,
		},
	})
}

// GetRuns returns collection run history for a source
// GET /api/v1/sources/:owner/:repo/runs
func (h *Handler) GetRuns(c *gin.Context) {
	source := sourceParam(c)

	runs, err := h.store.GetRuns(c.Request.Context(), source)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func sourceParam(c *gin.Context) string {
	return c.Param("owner") + "/" + c.Param("repo")
}

func parseKind(c *gin.Context) domain.Kind {
	return domain.Kind(c.Query("kind"))
}

func tableList(tables map[string]classifier.RuleTable) []classifier.RuleTable {
	list := make([]classifier.RuleTable, 0, len(tables))
	for _, name := range []string{"inactivity", "sentiment", "automation"} {
		if t, ok := tables[name]; ok {
			list = append(list, t)
		}
	}
	return list
}

// parseTimeRange parses time range from query parameters
func parseTimeRange(c *gin.Context) domain.TimeRange {
	// Default to last 30 days
	now := time.Now()
	defaultStart := now.AddDate(0, -1, 0)
	defaultEnd := now

	startStr := c.Query("start")
	endStr := c.Query("end")
	granularity := c.DefaultQuery("granularity", "week")

	var start, end time.Time
	var err error

	if startStr != "" {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			start = defaultStart
		}
	} else {
		start = defaultStart
	}

	if endStr != "" {
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			end = defaultEnd
		}
	} else {
		end = defaultEnd
	}

	if granularity != "day" && granularity != "week" && granularity != "month" {
		granularity = "week"
	}

	return domain.TimeRange{
		Start:       start,
		End:         end,
		Granularity: granularity,
	}
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeForbidden:
			status = http.StatusForbidden
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
