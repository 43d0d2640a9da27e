package common

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func post(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdemReplaysStoredResponse(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		JSON(w, http.StatusOK, map[string]int32{"call": n})
	}))

	first := post(handler, "abc")
	require.Equal(t, http.StatusOK, first.Code)
	require.JSONEq(t, `{"call":1}`, first.Body.String())

	second := post(handler, "abc")
	require.Equal(t, http.StatusOK, second.Code)
	require.JSONEq(t, `{"call":1}`, second.Body.String())
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.Equal(t, "application/json", second.Header().Get("Content-Type"))
	require.Equal(t, int32(1), calls.Load())

	third := post(handler, "other")
	require.JSONEq(t, `{"call":2}`, third.Body.String())
}

func TestIdemWithoutHeaderPassesThrough(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	post(handler, "")
	post(handler, "")
	require.Equal(t, int32(2), calls.Load())
}

func TestIdemPendingKeyConflicts(t *testing.T) {
	idem, mr := newIdem(t)
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	require.NoError(t, mr.Set(idemKey(req, "busy"), idemPending))

	rr := post(handler, "busy")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENCY_IN_PROGRESS")
}

func TestIdemServerErrorsAreNotStored(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "boom", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	require.Equal(t, http.StatusInternalServerError, post(handler, "retry").Code)
	require.Equal(t, http.StatusOK, post(handler, "retry").Code)
	require.Equal(t, int32(2), calls.Load())
}

func TestIdemWithoutClient(t *testing.T) {
	handler := Idem{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	require.Equal(t, http.StatusAccepted, post(handler, "abc").Code)
}

func TestIdemRejectsKeyReuseWithDifferentBody(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		JSON(w, http.StatusOK, map[string]bool{"ok": true})
	}))

	require.Equal(t, http.StatusOK, post(handler, "reused").Code)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Idempotency-Key", "reused")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), CodeIdempotencyMismatch)
	require.Equal(t, int32(1), calls.Load())
}

func TestIdemHandlerSeesFullBody(t *testing.T) {
	idem, _ := newIdem(t)
	var seen string
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	post(handler, "body")
	require.Equal(t, `{}`, seen)
}
