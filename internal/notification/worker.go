package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON body pushed to the browser.
type Payload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	BookingID string `json:"bookingId"`
	Status    string `json:"status"`
}

// WorkerPool manages a pool of workers that push booking changes to the
// booking's user.
type WorkerPool struct {
	size    int
	jobs    chan booking.Event
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	onDrop  func()
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan booking.Event, queueSize), // Buffered channel
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// OnDrop registers a callback for events dropped on a full queue.
func (wp *WorkerPool) OnDrop(fn func()) {
	wp.onDrop = fn
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case e := <-wp.jobs:
			wp.sendNotificationsForEvent(ctx, e)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// BookingChanged queues e without blocking the committing request. When the
// queue is full the event is dropped; push delivery is best effort.
func (wp *WorkerPool) BookingChanged(e booking.Event) {
	if e.UserID == "" {
		return
	}
	select {
	case wp.jobs <- e:
	default:
		log.Printf("Notification queue full, dropping %s event for booking %s", e.Kind, e.BookingID)
		if wp.onDrop != nil {
			wp.onDrop()
		}
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan booking.Event {
	return wp.jobs
}

// sendNotificationsForEvent fetches the user's subscriptions and notifies each.
func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, e booking.Event) {
	subscriptions, err := wp.store.ListSubscriptionsForUser(ctx, e.UserID)
	if err != nil {
		log.Printf("Error fetching subscriptions for user %s: %v", e.UserID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for booking %s", len(subscriptions), e.BookingID)

	label := e.ParkingID
	if loc, err := wp.store.GetLocation(ctx, e.ParkingID); err != nil {
		log.Printf("Error fetching parking location %s: %v", e.ParkingID, err)
	} else if loc.Name != "" {
		label = loc.Name
	}

	payload, err := json.Marshal(Payload{
		Title:     "Parking booking update",
		Body:      message(e, label),
		BookingID: e.BookingID,
		Status:    string(e.To),
	})
	if err != nil {
		log.Printf("Error encoding notification for booking %s: %v", e.BookingID, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func message(e booking.Event, label string) string {
	switch e.Kind {
	case booking.EventCreated:
		return fmt.Sprintf("Your booking at %s is confirmed.", label)
	case booking.EventCheckedIn:
		return fmt.Sprintf("Checked in at %s.", label)
	case booking.EventCheckedOut:
		return fmt.Sprintf("Checked out of %s. Thanks for parking with us.", label)
	case booking.EventExpired:
		return fmt.Sprintf("Your booking at %s expired without check-in and was cancelled.", label)
	case booking.EventCancelled:
		return fmt.Sprintf("Your booking at %s was cancelled.", label)
	case booking.EventExtended:
		return fmt.Sprintf("Your booking at %s was extended.", label)
	default:
		return fmt.Sprintf("Your booking at %s was updated.", label)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
