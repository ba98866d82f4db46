package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-engine/folio"
	"github.com/warp/folio-engine/lock"
	"github.com/warp/folio-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testToday is the business date every API test runs on.
var testToday = folio.NewDate(2025, time.March, 15)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(Deps{
		Store:  store,
		Locker: lock.NewLocal(),
		Clock:  folio.FixedClock{At: testToday.Time.Add(10 * time.Hour)},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &testServer{t: t, handler: h, router: NewRouter(h, nil)}
}

// do sends body as JSON. Extra arguments are header name/value pairs.
func (s *testServer) do(method, path string, body any, header ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoErrorf(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equalf(t, want, rec.Code, "body: %s", rec.Body.String())
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// checkIn registers an in-house stay, checked in March 10 and due out March 14.
func (s *testServer) checkIn(folioNo, reservationNo string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/stays", map[string]any{
		"folio_no":       folioNo,
		"reservation_no": reservationNo,
		"guest_name":     "Asha Rao",
		"room_no":        "204",
		"from_date":      "2025-03-10",
		"to_date":        "2025-03-14",
		"check_in_date":  "2025-03-10",
	})
	requireStatus(s.t, rec, http.StatusCreated)
}

func (s *testServer) post(path string, body any) {
	s.t.Helper()
	requireStatus(s.t, s.do(http.MethodPost, path, body), http.StatusCreated)
}
