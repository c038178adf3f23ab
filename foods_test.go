package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFoodJSON = `{"name":"Oat Bar","serving_size":40,"serving_unit":"g","calories":180,"protein_g":5,"carbs_g":28,"fat_g":6}`

func TestUpdateFood_Preconditions(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	tests := []struct {
		name    string
		path    string
		ifMatch string
		body    string
		want    int
	}{
		{"missing If-Match", "/api/foods/1", "", validFoodJSON, http.StatusPreconditionRequired},
		{"malformed If-Match", "/api/foods/1", "v1", validFoodJSON, http.StatusBadRequest},
		{"bad id", "/api/foods/abc", encodeRowVersion(1), validFoodJSON, http.StatusBadRequest},
		{"invalid body", "/api/foods/1", encodeRowVersion(1), `{"name":`, http.StatusBadRequest},
		{"field error", "/api/foods/1", encodeRowVersion(1), `{"name":"","serving_size":1,"serving_unit":"g"}`, http.StatusBadRequest},
		{"macro mismatch", "/api/foods/1", encodeRowVersion(1),
			`{"name":"Bar","serving_size":40,"serving_unit":"g","calories":900,"protein_g":5,"carbs_g":28,"fat_g":6}`,
			http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.ifMatch != "" {
				headers["If-Match"] = tt.ifMatch
			}
			w := doRequest(router, http.MethodPut, tt.path, tt.body, headers)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

// A missing If-Match is reported before the body is even looked at.
func TestUpdateFood_MissingIfMatchBeatsBadBody(t *testing.T) {
	router := newTestRouter(newTestHandler(t))
	w := doRequest(router, http.MethodPut, "/api/foods/1", `not json`, nil)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
}

func TestCreateFood_Validation(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	w := doRequest(router, http.MethodPost, "/api/foods", `{"name":"Bar","serving_size":40,"serving_unit":"g","calories":900,"protein_g":5,"carbs_g":28,"fat_g":6}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "do not match macros")

	w = doRequest(router, http.MethodPost, "/api/foods", `{"name":"Bar","serving_size":0,"serving_unit":"g"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "serving_size")
}

func TestDeleteFood_MalformedIfMatch(t *testing.T) {
	router := newTestRouter(newTestHandler(t))
	w := doRequest(router, http.MethodDelete, "/api/foods/1", "", map[string]string{"If-Match": `"%%"`})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchFoods_InvalidParams(t *testing.T) {
	router := newTestRouter(newTestHandler(t))
	for _, q := range []string{"page_size=500", "sort=secret", "order=up", "page=-1"} {
		w := doRequest(router, http.MethodGet, "/api/foods?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetFood_BadID(t *testing.T) {
	router := newTestRouter(newTestHandler(t))
	w := doRequest(router, http.MethodGet, "/api/foods/0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckEditable(t *testing.T) {
	owner := 1
	own := food{ID: 7, UserID: &owner, RowVersion: 3}
	shared := food{ID: 8, RowVersion: 1}

	tests := []struct {
		name         string
		f            food
		cond         ifMatch
		checkVersion bool
		wantErr      error
		wantCurrent  int64
	}{
		{"shared food", shared, ifMatch{Any: true}, true, errForbidden, 0},
		{"shared food without If-Match", shared, ifMatch{}, false, errForbidden, 0},
		{"stale version", own, ifMatch{Versions: []int64{2}}, true, errVersionMismatch, 3},
		{"delete without If-Match", own, ifMatch{}, false, nil, 0},
		{"wildcard", own, ifMatch{Any: true}, true, nil, 0},
		{"version in list", own, ifMatch{Versions: []int64{1, 3}}, true, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkEditable(tt.f, tt.cond, tt.checkVersion)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			var vm *versionMismatchError
			if errors.As(err, &vm) {
				assert.Equal(t, tt.wantCurrent, vm.Current)
			}
		})
	}
}

func TestRemoveOrArchiveFood_DeletesUnreferenced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	owner := 1
	current := food{ID: 7, UserID: &owner, Name: "Oat Bar", RowVersion: 2}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)::int FROM intake_entries").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM foods").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	archived, err := removeOrArchiveFood(context.Background(), mock, owner, current)
	require.NoError(t, err)
	assert.Nil(t, archived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveOrArchiveFood_ArchivesReferenced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	owner := 1
	current := food{ID: 7, UserID: &owner, Name: "Oat Bar", RowVersion: 2}
	updateErr := errors.New("update failed")

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)::int FROM intake_entries").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("UPDATE foods SET archived = true").WillReturnError(updateErr)

	archived, err := removeOrArchiveFood(context.Background(), mock, owner, current)
	assert.ErrorIs(t, err, updateErr)
	assert.Nil(t, archived)
	// Referenced foods are never deleted, so no DELETE was expected or issued.
	assert.NoError(t, mock.ExpectationsWereMet())
}
