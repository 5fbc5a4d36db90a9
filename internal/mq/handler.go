package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/parse"
)

const (
	CodeBadRequest        = "bad_request"
	CodeNotFound          = "not_found"
	CodeInvalidInterval   = "invalid_interval"
	CodeInvalidInput      = "invalid_input"
	CodeCapacityExceeded  = "capacity_exceeded"
	CodeInvalidState      = "invalid_state"
	CodeInvalidCredential = "invalid_credential"
	CodeForbidden         = "forbidden"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal"
)

// Handler dispatches decoded commands to the booking service.
type Handler struct {
	bookings *booking.Service
}

func NewHandler(bookings *booking.Service) *Handler {
	return &Handler{bookings: bookings}
}

// Handle decodes one message body and runs the command it carries.
func (h *Handler) Handle(ctx context.Context, body []byte) Response {
	var env CommandEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return failure("Error", CodeBadRequest, "invalid command format: "+err.Error())
	}
	caller := booking.Caller{ID: env.Caller.ID, Role: booking.ParseRole(env.Caller.Role)}

	switch env.Type {
	case CommandCreateBooking:
		return h.createBooking(ctx, caller, env.Payload)
	case CommandCancelBooking:
		return h.cancelBooking(ctx, caller, env.Payload)
	case CommandVerifyEntry:
		return h.verifyEntry(ctx, caller, env.Payload)
	case CommandExtendBooking:
		return h.extendBooking(ctx, caller, env.Payload)
	case CommandCheckAvailability:
		return h.checkAvailability(ctx, env.Payload)
	default:
		return failure("Error", CodeBadRequest, "unknown command type: "+string(env.Type))
	}
}

func (h *Handler) createBooking(ctx context.Context, caller booking.Caller, payload json.RawMessage) Response {
	const typ = "CreateBookingResponse"
	var req CreateBookingPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return failure(typ, CodeBadRequest, "invalid payload: "+err.Error())
	}
	if caller.ID == "" {
		return failure(typ, CodeForbidden, "caller id is required")
	}
	if req.ParkingID == "" || req.StartTime == "" || req.EndTime == "" {
		return failure(typ, CodeBadRequest, "parking_id, start_time and end_time are required")
	}
	start, end, err := interval(req.StartTime, req.EndTime)
	if err != nil {
		return failure(typ, CodeBadRequest, err.Error())
	}

	b, err := h.bookings.Create(ctx, caller, booking.CreateRequest{
		ParkingID:    req.ParkingID,
		Start:        start,
		End:          end,
		VehiclePlate: req.VehiclePlate,
	})
	if err != nil {
		return fromError(typ, err)
	}
	p := bookingPayload(b)
	p.Credential = b.Credential
	return success(typ, p)
}

func (h *Handler) cancelBooking(ctx context.Context, caller booking.Caller, payload json.RawMessage) Response {
	const typ = "CancelBookingResponse"
	var req CancelBookingPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return failure(typ, CodeBadRequest, "invalid payload: "+err.Error())
	}
	if req.BookingID == "" {
		return failure(typ, CodeBadRequest, "booking_id is required")
	}

	b, err := h.bookings.Cancel(ctx, caller, req.BookingID)
	if err != nil {
		return fromError(typ, err)
	}
	return success(typ, StatusResponsePayload{Status: string(b.Status), Message: "Booking cancelled successfully"})
}

// verifyEntry is restricted to gate operators, mirroring the HTTP route.
func (h *Handler) verifyEntry(ctx context.Context, caller booking.Caller, payload json.RawMessage) Response {
	const typ = "VerifyEntryResponse"
	var req VerifyEntryPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return failure(typ, CodeBadRequest, "invalid payload: "+err.Error())
	}
	if caller.ID == "" || (caller.Role != booking.RoleOwner && caller.Role != booking.RoleAdmin) {
		return failure(typ, CodeForbidden, "verify requires an owner or admin caller")
	}
	if req.BookingID == "" || req.Credential == "" {
		return failure(typ, CodeBadRequest, "booking_id and credential are required")
	}

	res, err := h.bookings.Verify(ctx, req.BookingID, req.Credential)
	if err != nil {
		return fromError(typ, err)
	}
	return success(typ, StatusResponsePayload{Status: string(res.Status), Message: res.Message})
}

func (h *Handler) extendBooking(ctx context.Context, caller booking.Caller, payload json.RawMessage) Response {
	const typ = "ExtendBookingResponse"
	var req ExtendBookingPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return failure(typ, CodeBadRequest, "invalid payload: "+err.Error())
	}
	if req.BookingID == "" || req.NewEndTime == "" {
		return failure(typ, CodeBadRequest, "booking_id and new_end_time are required")
	}
	end, err := parse.Timestamp(req.NewEndTime)
	if err != nil {
		return failure(typ, CodeBadRequest, err.Error())
	}

	b, err := h.bookings.Extend(ctx, caller, req.BookingID, end)
	if err != nil {
		return fromError(typ, err)
	}
	return success(typ, bookingPayload(b))
}

func (h *Handler) checkAvailability(ctx context.Context, payload json.RawMessage) Response {
	const typ = "CheckAvailabilityResponse"
	var req CheckAvailabilityPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return failure(typ, CodeBadRequest, "invalid payload: "+err.Error())
	}
	if req.ParkingID == "" {
		return failure(typ, CodeBadRequest, "parking_id is required")
	}
	start, end, err := interval(req.StartTime, req.EndTime)
	if err != nil {
		return failure(typ, CodeBadRequest, err.Error())
	}

	a, err := h.bookings.CheckAvailabilityDetail(ctx, req.ParkingID, start, end)
	if err != nil {
		return fromError(typ, err)
	}
	return success(typ, AvailabilityResponsePayload{
		Available:        a.Available,
		CurrentAvailable: a.CurrentAvailable,
		TotalCapacity:    a.TotalCapacity,
		HourlyRate:       a.HourlyRate,
	})
}

func interval(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := parse.Timestamp(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := parse.Timestamp(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time: %w", err)
	}
	return start, end, nil
}

func bookingPayload(b *model.Booking) BookingResponsePayload {
	return BookingResponsePayload{
		BookingID:  b.ID,
		Status:     string(b.Status),
		StartTime:  b.StartTime.UTC().Format(time.RFC3339),
		EndTime:    b.EndTime.UTC().Format(time.RFC3339),
		TotalPrice: b.TotalPrice.StringFixed(2),
	}
}

func success(typ string, payload interface{}) Response {
	raw, err := json.Marshal(payload)
	if err != nil {
		return failure(typ, CodeInternal, "failed to encode payload: "+err.Error())
	}
	return Response{OK: true, Type: typ, Payload: raw}
}

func failure(typ, code, message string) Response {
	return Response{OK: false, Type: typ, Code: code, Error: message}
}

func fromError(typ string, err error) Response {
	resp := failure(typ, codeFor(err), err.Error())
	resp.Retryable = booking.Retryable(err)
	return resp
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, booking.ErrInvalidInterval):
		return CodeInvalidInterval
	case errors.Is(err, booking.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, booking.ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, booking.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, booking.ErrInvalidCredential):
		return CodeInvalidCredential
	case errors.Is(err, booking.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, booking.ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
