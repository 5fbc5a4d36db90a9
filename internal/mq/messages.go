// Package mq exposes the booking operations as request/reply commands over
// RabbitMQ.
package mq

import "encoding/json"

type CommandType string

const (
	CommandCreateBooking     CommandType = "CreateBooking"
	CommandCancelBooking     CommandType = "CancelBooking"
	CommandVerifyEntry       CommandType = "VerifyEntry"
	CommandExtendBooking     CommandType = "ExtendBooking"
	CommandCheckAvailability CommandType = "CheckAvailability"
)

// CommandEnvelope wraps every command. Caller is asserted by the publisher,
// which is trusted the same way the HTTP gateway is.
type CommandEnvelope struct {
	Type    CommandType     `json:"type"`
	Caller  CallerInfo      `json:"caller"`
	Payload json.RawMessage `json:"payload"`
}

type CallerInfo struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Request payloads

type CreateBookingPayload struct {
	ParkingID    string `json:"parking_id"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	VehiclePlate string `json:"vehicle_plate,omitempty"`
}

type CancelBookingPayload struct {
	BookingID string `json:"booking_id"`
}

type VerifyEntryPayload struct {
	BookingID  string `json:"booking_id"`
	Credential string `json:"credential"`
}

type ExtendBookingPayload struct {
	BookingID  string `json:"booking_id"`
	NewEndTime string `json:"new_end_time"`
}

type CheckAvailabilityPayload struct {
	ParkingID string `json:"parking_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Response payloads

type BookingResponsePayload struct {
	BookingID  string `json:"booking_id"`
	Status     string `json:"status"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	TotalPrice string `json:"total_price"`
	Credential string `json:"credential,omitempty"`
}

type StatusResponsePayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AvailabilityResponsePayload struct {
	Available        bool   `json:"available"`
	CurrentAvailable int    `json:"current_available"`
	TotalCapacity    int    `json:"total_capacity"`
	HourlyRate       string `json:"hourly_rate"`
}

// Response is the reply envelope. Code classifies failures so publishers can
// decide whether to retry without parsing Error.
type Response struct {
	OK        bool            `json:"ok"`
	Type      string          `json:"type"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
