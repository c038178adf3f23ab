package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
		etag    string
	}{
		{"validation", invalidf("name is required"), http.StatusBadRequest, "name is required", ""},
		{"macro mismatch", &macroMismatchError{Stated: 900, Computed: 186}, http.StatusUnprocessableEntity,
			"calories (900) do not match macros (186 kcal from protein, carbs and fat)", ""},
		{"version mismatch", fmt.Errorf("update food: %w", &versionMismatchError{Current: 3}),
			http.StatusPreconditionFailed, "food was modified by another request", encodeRowVersion(3)},
		{"not found", errNotFound, http.StatusNotFound, "food not found", ""},
		{"no rows", fmt.Errorf("load: %w", pgx.ErrNoRows), http.StatusNotFound, "food not found", ""},
		{"shared food", errForbidden, http.StatusForbidden, "shared catalogue foods cannot be modified", ""},
		{"archived food", errFoodArchived, http.StatusConflict, "archived foods cannot be logged", ""},
		{"unique violation", &pgconn.PgError{Code: "23505"}, http.StatusConflict, "conflicts with existing data", ""},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, http.StatusConflict, "conflicts with existing data", ""},
		{"other pg error", &pgconn.PgError{Code: "57014"}, http.StatusInternalServerError, "failed to update food", ""},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "failed to update food", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			h := &Handler{log: zap.New(core)}

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPut, "/api/foods/1", nil)

			h.respondError(c, tt.err, "food not found", "failed to update food")

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.message), w.Body.String())
			assert.Equal(t, tt.etag, w.Header().Get("ETag"))
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, 1, logs.FilterMessage("failed to update food").Len())
			} else {
				assert.Zero(t, logs.Len())
			}
		})
	}
}
