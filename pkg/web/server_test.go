package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store/storetest"
)

func newTestServer(t *testing.T) (*storetest.Memory, http.Handler) {
	t.Helper()
	st := storetest.NewMemory()
	st.Put("ev1", model.EventRecord{
		Name:             "Dinner",
		Participants:     []model.Participant{{ID: "a", Name: "Ada"}, {ID: "b", Name: "Bo"}},
		UnavailableDates: model.DateMarks{"2024-06-04": {"b"}},
	})

	s := NewServer(st, zap.NewNop(), 6)
	s.now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.Local) }
	return st, s.Handler()
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, View) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

	var view View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	return rr, view
}

func TestView_NeutralWithoutID(t *testing.T) {
	_, h := newTestServer(t)

	rr, view := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, StateNeutral, view.State)
	assert.Nil(t, view.Event)
	assert.JSONEq(t, `{"state":"neutral"}`, rr.Body.String())
}

func TestView_Event(t *testing.T) {
	_, h := newTestServer(t)

	rr, view := get(t, h, "/?id=ev1")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, StateEvent, view.State)
	require.NotNil(t, view.Event)
	assert.Equal(t, "Dinner", view.Event.Name)

	require.Len(t, view.BestDates, 3)
	assert.Equal(t, "Sat 1 - Mon 3 Jun", view.BestDates[0].Label)
	assert.Equal(t, "2024-06-05", view.BestDates[1].StartDate)
	assert.Equal(t, 1, view.BestDates[2].AvailableCount)
}

func TestView_UnknownIDIsNeutral404(t *testing.T) {
	_, h := newTestServer(t)

	rr, view := get(t, h, "/?id=missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, StateNeutral, view.State)
	assert.NotEmpty(t, view.Error)
}

func TestView_StoreFailure(t *testing.T) {
	st, h := newTestServer(t)
	st.Fail = func(op, id string) error { return errors.New("connection reset") }

	rr, view := get(t, h, "/?id=ev1")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, StateNeutral, view.State)
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/?id=ev1", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
