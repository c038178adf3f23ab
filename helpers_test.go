package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// newTestHandler returns a Handler with no database. Only code paths that
// fail validation before touching the pool may be exercised with it.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return &Handler{
		log:          zap.NewNop(),
		reports:      newMemoryReportCache(time.Minute),
		loginLimiter: newRateLimiter(600, 100),
	}
}

// newTestRouter registers h's routes without auth, with user_id fixed to 1.
func newTestRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Next()
	})
	api := router.Group("/api")
	api.GET("/foods", h.searchFoods)
	api.POST("/foods", h.createFood)
	api.POST("/foods/estimate", h.estimateFood)
	api.GET("/foods/:id", h.getFood)
	api.PUT("/foods/:id", h.updateFood)
	api.DELETE("/foods/:id", h.deleteFood)
	api.GET("/intake", h.getIntakeDay)
	api.POST("/intake", h.createIntakeEntry)
	api.PUT("/intake/:id", h.updateIntakeEntry)
	api.DELETE("/intake/:id", h.deleteIntakeEntry)
	api.POST("/goals", h.createGoal)
	api.PATCH("/profile", h.patchProfile)
	api.GET("/reports/daily", h.getDailyReport)
	api.GET("/reports/weekly", h.getWeeklyReport)
	api.GET("/reports/monthly", h.getMonthlyReport)
	api.GET("/reports/rolling", h.getRollingReport)
	api.GET("/reports/trend", h.getTrendReport)
	api.GET("/reports/adherence", h.getAdherenceReport)
	api.GET("/audit", h.getAuditLog)
	return router
}

// doRequest sends a request with an optional JSON body and headers.
func doRequest(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := parseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func summaryOn(t *testing.T, date string, calories int, proteinG, carbsG, fatG float64) dailySummaryRow {
	return dailySummaryRow{
		UserID: 1, Date: DateOnly{mustDate(t, date)}, Calories: calories,
		ProteinG: proteinG, CarbsG: carbsG, FatG: fatG, EntryCount: 1,
	}
}

func goalFrom(t *testing.T, id int, date string, calories, protein, carbs, fat int) nutritionGoal {
	return nutritionGoal{
		ID: id, UserID: 1, CalorieTarget: calories, ProteinTargetG: protein,
		CarbsTargetG: carbs, FatTargetG: fat, EffectiveFrom: DateOnly{mustDate(t, date)},
	}
}
