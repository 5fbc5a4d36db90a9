package mq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
	"parking-booking-backend/internal/testutil"
)

func newHandler(t *testing.T, capacity int) (*Handler, *model.ParkingLocation) {
	t.Helper()
	gormDB := testutil.NewSQLiteDB(t)
	loc := testutil.SeedLocation(t, gormDB, capacity)
	return NewHandler(booking.NewService(store.NewGormStore(gormDB))), loc
}

func command(t *testing.T, typ CommandType, caller CallerInfo, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(CommandEnvelope{Type: typ, Caller: caller, Payload: raw})
	require.NoError(t, err)
	return body
}

var (
	driver = CallerInfo{ID: "alice", Role: "user"}
	gate   = CallerInfo{ID: "gate-1", Role: "owner"}
)

func TestHandle_BookingLifecycle(t *testing.T) {
	h, loc := newHandler(t, 1)
	ctx := context.Background()

	resp := h.Handle(ctx, command(t, CommandCreateBooking, driver, CreateBookingPayload{
		ParkingID: loc.ID,
		StartTime: "2030-01-01T10:00:00Z",
		EndTime:   "2030-01-01T11:30:00Z",
	}))
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "CreateBookingResponse", resp.Type)

	var created BookingResponsePayload
	require.NoError(t, json.Unmarshal(resp.Payload, &created))
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "15.00", created.TotalPrice)
	assert.NotEmpty(t, created.Credential)

	resp = h.Handle(ctx, command(t, CommandCheckAvailability, driver, CheckAvailabilityPayload{
		ParkingID: loc.ID,
		StartTime: "2030-01-01T11:00:00Z",
		EndTime:   "2030-01-01T12:00:00Z",
	}))
	require.True(t, resp.OK)
	var avail AvailabilityResponsePayload
	require.NoError(t, json.Unmarshal(resp.Payload, &avail))
	assert.False(t, avail.Available)

	resp = h.Handle(ctx, command(t, CommandVerifyEntry, driver, VerifyEntryPayload{
		BookingID: created.BookingID, Credential: created.Credential,
	}))
	assert.False(t, resp.OK)
	assert.Equal(t, CodeForbidden, resp.Code)

	resp = h.Handle(ctx, command(t, CommandVerifyEntry, gate, VerifyEntryPayload{
		BookingID: created.BookingID, Credential: "nope",
	}))
	assert.Equal(t, CodeInvalidCredential, resp.Code)

	resp = h.Handle(ctx, command(t, CommandVerifyEntry, gate, VerifyEntryPayload{
		BookingID: created.BookingID, Credential: created.Credential,
	}))
	require.True(t, resp.OK, resp.Error)
	var status StatusResponsePayload
	require.NoError(t, json.Unmarshal(resp.Payload, &status))
	assert.Equal(t, "active", status.Status)
	assert.Equal(t, "Booking is now active", status.Message)

	resp = h.Handle(ctx, command(t, CommandExtendBooking, driver, ExtendBookingPayload{
		BookingID: created.BookingID, NewEndTime: "2030-01-01T12:00:00Z",
	}))
	require.True(t, resp.OK, resp.Error)
	var extended BookingResponsePayload
	require.NoError(t, json.Unmarshal(resp.Payload, &extended))
	assert.Equal(t, "20.00", extended.TotalPrice)
	assert.Empty(t, extended.Credential)

	resp = h.Handle(ctx, command(t, CommandCancelBooking, driver, CancelBookingPayload{BookingID: created.BookingID}))
	require.True(t, resp.OK, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Payload, &status))
	assert.Equal(t, "cancelled", status.Status)

	resp = h.Handle(ctx, command(t, CommandCancelBooking, driver, CancelBookingPayload{BookingID: created.BookingID}))
	assert.Equal(t, CodeInvalidState, resp.Code)
	assert.False(t, resp.Retryable)
}

func TestHandle_CapacityIsRetryable(t *testing.T) {
	h, loc := newHandler(t, 1)
	ctx := context.Background()
	payload := CreateBookingPayload{ParkingID: loc.ID, StartTime: "2030-01-01T10:00:00Z", EndTime: "2030-01-01T11:00:00Z"}

	require.True(t, h.Handle(ctx, command(t, CommandCreateBooking, driver, payload)).OK)

	resp := h.Handle(ctx, command(t, CommandCreateBooking, CallerInfo{ID: "bob"}, payload))
	assert.Equal(t, CodeCapacityExceeded, resp.Code)
	assert.True(t, resp.Retryable)
}

func TestHandle_BadInput(t *testing.T) {
	h, loc := newHandler(t, 1)
	ctx := context.Background()

	resp := h.Handle(ctx, []byte("{not json"))
	assert.Equal(t, CodeBadRequest, resp.Code)
	assert.Equal(t, "Error", resp.Type)

	resp = h.Handle(ctx, command(t, "Teleport", driver, struct{}{}))
	assert.Equal(t, CodeBadRequest, resp.Code)

	resp = h.Handle(ctx, command(t, CommandCreateBooking, driver, CreateBookingPayload{ParkingID: loc.ID}))
	assert.Equal(t, CodeBadRequest, resp.Code)

	resp = h.Handle(ctx, command(t, CommandCreateBooking, driver, CreateBookingPayload{
		ParkingID: loc.ID, StartTime: "2030-01-01T11:00:00Z", EndTime: "2030-01-01T10:00:00Z",
	}))
	assert.Equal(t, CodeInvalidInterval, resp.Code)

	resp = h.Handle(ctx, command(t, CommandCreateBooking, CallerInfo{}, CreateBookingPayload{
		ParkingID: loc.ID, StartTime: "2030-01-01T10:00:00Z", EndTime: "2030-01-01T11:00:00Z",
	}))
	assert.Equal(t, CodeForbidden, resp.Code)

	resp = h.Handle(ctx, command(t, CommandCancelBooking, driver, CancelBookingPayload{BookingID: "missing"}))
	assert.Equal(t, CodeNotFound, resp.Code)
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, CodeUnavailable, codeFor(booking.ErrUnavailable))
	assert.Equal(t, CodeInternal, codeFor(assert.AnError))
}
