package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/metrics"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/mw"
	"parking-booking-backend/internal/parking"
	"parking-booking-backend/internal/store"
	"parking-booking-backend/internal/testutil"
)

type testServer struct {
	router *gin.Engine
	loc    *model.ParkingLocation
	cache  *mw.ResponseCache
}

func newTestServer(t *testing.T, capacity int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB := testutil.NewSQLiteDB(t)
	st := store.NewGormStore(gormDB)
	loc := testutil.SeedLocation(t, gormDB, capacity)

	rc := mw.NewResponseCache(time.Minute)
	bookings := booking.NewService(st, booking.WithListener(rc))
	h := NewHandler(st, bookings, parking.NewService(st), nil).WithCache(rc)

	router := NewRouter(h, RouterConfig{RateLimit: rate.Inf, RateBurst: 1, Metrics: metrics.New()})
	return &testServer{router: router, loc: loc, cache: rc}
}

func (s *testServer) do(t *testing.T, method, target, user, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = strings.NewReader(string(raw))
	} else {
		payload = strings.NewReader("")
	}
	req, err := http.NewRequest(method, target, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(mw.HeaderUserID, user)
		req.Header.Set(mw.HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) book(t *testing.T, user, start, end string) *httptest.ResponseRecorder {
	return s.do(t, http.MethodPost, "/api/bookings", user, "user", gin.H{
		"parkingId": s.loc.ID,
		"startTime": start,
		"endTime":   end,
	})
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t, 1)

	w := s.book(t, "alice", "2030-01-01T10:00:00Z", "2030-01-01T12:00:00Z")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["id"].(string)
	credential := created["credential"].(string)
	assert.Len(t, credential, 43)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "20", created["totalPrice"])

	// Same slot, no capacity left.
	w = s.book(t, "bob", "2030-01-01T11:00:00Z", "2030-01-01T13:00:00Z")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, true, decode(t, w)["retryable"])

	// Touching interval is admitted.
	w = s.book(t, "bob", "2030-01-01T12:00:00Z", "2030-01-01T13:00:00Z")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/bookings/"+id, "alice", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, exposed := decode(t, w)["credential"]
	assert.False(t, exposed, "credential only travels on create and its own endpoint")

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/bookings/"+id, "bob", "user", nil).Code)

	w = s.do(t, http.MethodGet, "/api/bookings/"+id+"/credential", "alice", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, credential, decode(t, w)["credential"])

	verify := "/api/bookings/" + id + "/verify"
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, verify, "alice", "user", gin.H{"credential": credential}).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, verify, "gate", "owner", gin.H{"credential": "wrong"}).Code)

	w = s.do(t, http.MethodPost, verify, "gate", "owner", gin.H{"credential": credential})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"active","message":"Booking is now active"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/parking/"+s.loc.ID+"/occupancy", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	occ := decode(t, w)
	assert.EqualValues(t, 1, occ["occupied"])
	assert.EqualValues(t, 1, occ["reserved"])
	assert.NotNil(t, occ["lastEntryAt"])

	w = s.do(t, http.MethodPost, verify, "gate", "owner", gin.H{"credential": credential})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"completed","message":"Booking is now completed"}`, w.Body.String())

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, verify, "gate", "owner", gin.H{"credential": credential}).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/bookings/"+id+"/cancel", "alice", "user", nil).Code)

	w = s.do(t, http.MethodGet, "/api/bookings/history", "alice", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.EqualValues(t, 1, page["total"])
	assert.EqualValues(t, 1, page["page"])
	assert.EqualValues(t, 20, page["limit"])
}

func TestCancelBooking(t *testing.T) {
	s := newTestServer(t, 2)

	w := s.book(t, "alice", "2030-01-01T10:00:00Z", "2030-01-01T12:00:00Z")
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/bookings/"+id+"/cancel", "bob", "user", nil).Code)

	w = s.do(t, http.MethodPost, "/api/bookings/"+id+"/cancel", "alice", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Booking cancelled successfully"}`, w.Body.String())

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/bookings/"+id+"/cancel", "alice", "user", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/bookings/missing/cancel", "alice", "user", nil).Code)
}

func TestUpdateAndExtend(t *testing.T) {
	s := newTestServer(t, 1)

	w := s.book(t, "alice", "2030-01-01T10:00:00Z", "2030-01-01T11:00:00Z")
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)
	require.Equal(t, http.StatusCreated, s.book(t, "bob", "2030-01-01T12:00:00Z", "2030-01-01T13:00:00Z").Code)

	w = s.do(t, http.MethodPost, "/api/bookings/"+id+"/extend", "alice", "user", gin.H{"newEndTime": "2030-01-01T12:30:00Z"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/bookings/"+id+"/extend", "alice", "user", gin.H{"newEndTime": "2030-01-01T12:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20", decode(t, w)["totalPrice"])

	w = s.do(t, http.MethodPut, "/api/bookings/"+id, "alice", "user", gin.H{"vehiclePlate": "b ab 123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "B AB 123", decode(t, w)["vehiclePlate"])

	w = s.do(t, http.MethodPut, "/api/bookings/"+id, "alice", "user", gin.H{"startTime": "not a time"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBooking_Validation(t *testing.T) {
	s := newTestServer(t, 1)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/bookings", "", "", gin.H{}).Code)

	w := s.do(t, http.MethodPost, "/api/bookings", "alice", "user", gin.H{"parkingId": s.loc.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = s.book(t, "alice", "2030-01-01T12:00:00Z", "2030-01-01T10:00:00Z")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/bookings", "alice", "user", gin.H{
		"parkingId": "missing", "startTime": "2030-01-01T10:00:00Z", "endTime": "2030-01-01T11:00:00Z",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckAvailability_AlwaysReadsLedger(t *testing.T) {
	s := newTestServer(t, 1)
	target := "/api/bookings/check-availability?parkingId=" + s.loc.ID +
		"&startTime=2030-01-01T10:00:00Z&endTime=2030-01-01T11:00:00Z"

	w := s.do(t, http.MethodGet, target, "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"available":true,"currentAvailable":1,"totalCapacity":1,"hourlyRate":"10.00"}`, w.Body.String())

	// The queue worker books out of process, so availability is never cached.
	w = s.do(t, http.MethodGet, target, "", "", nil)
	assert.Empty(t, w.Header().Get("X-Cache"))

	require.Equal(t, http.StatusCreated, s.book(t, "alice", "2030-01-01T10:30:00Z", "2030-01-01T11:30:00Z").Code)

	w = s.do(t, http.MethodGet, target, "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"available":false,"currentAvailable":0,"totalCapacity":1,"hourlyRate":"10.00"}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/bookings/check-availability?parkingId=x", "", "", nil).Code)
}

func TestParkingEndpoints(t *testing.T) {
	s := newTestServer(t, 1)

	body := gin.H{
		"name": "Harbor", "address": "Pier 1", "latitude": 52.521, "longitude": 13.405,
		"totalCapacity": 4, "hourlyRate": "2.50",
	}
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/parking", "alice", "user", body).Code)

	w := s.do(t, http.MethodPost, "/api/parking", "owner-9", "owner", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = s.do(t, http.MethodGet, "/api/parking/nearby?latitude=52.52&longitude=13.405&radius=500", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var nearby []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nearby))
	require.Len(t, nearby, 2)
	assert.Equal(t, s.loc.ID, nearby[0]["id"])
	assert.Equal(t, id, nearby[1]["id"])

	w = s.do(t, http.MethodGet, "/api/parking/"+id+"/pricing", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2.5", decode(t, w)["hourlyRate"])

	assert.Equal(t, http.StatusForbidden,
		s.do(t, http.MethodPut, "/api/parking/"+id+"/pricing", "owner-1", "owner", gin.H{"hourlyRate": "3"}).Code)
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPut, "/api/parking/"+id+"/pricing", "owner-9", "owner", gin.H{"hourlyRate": "3"}).Code)

	w = s.do(t, http.MethodGet, "/api/parking/"+id+"/pricing", "", "", nil)
	assert.Equal(t, "3", decode(t, w)["hourlyRate"])

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/parking/missing", "", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/api/parking/"+id+"/occupancy/ws", "", "", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 1)
	w := s.do(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		booking.ErrNotFound:          http.StatusNotFound,
		booking.ErrInvalidInterval:   http.StatusBadRequest,
		booking.ErrInvalidInput:      http.StatusBadRequest,
		booking.ErrCapacityExceeded:  http.StatusConflict,
		booking.ErrInvalidState:      http.StatusConflict,
		booking.ErrInvalidCredential: http.StatusUnauthorized,
		booking.ErrForbidden:         http.StatusForbidden,
		booking.ErrUnavailable:       http.StatusServiceUnavailable,
		assert.AnError:               http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
