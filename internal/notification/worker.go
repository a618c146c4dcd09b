// Package notification delivers check-in denial alerts to supervisors over
// web push. Delivery is best-effort and fully asynchronous: the access
// decision never waits on it.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"site-attendance-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// denialAlert is the push payload shown to the supervisor.
type denialAlert struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	AttemptID  int64  `json:"attempt_id"`
	DenialID   int64  `json:"denial_id"`
	LabourerID int64  `json:"labourer_id"`
	Reason     string `json:"reason"`
}

// WorkerPool manages a pool of workers for sending denial alerts.
type WorkerPool struct {
	size    int
	jobs    chan int64
	store   store.Store
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender swaps the delivery implementation; used by tests.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case denialID := <-wp.jobs:
			wp.notify(ctx, denialID)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// NotifyDenial queues a denial for delivery. It never blocks the caller: if
// the queue is full the alert is dropped and logged.
func (wp *WorkerPool) NotifyDenial(denialID int64) {
	select {
	case wp.jobs <- denialID:
	default:
		log.Printf("notification queue full, dropping alert for denial %d", denialID)
	}
}

// notify loads the denial context and pushes an alert to every subscription
// registered for the project's supervisors.
func (wp *WorkerPool) notify(ctx context.Context, denialID int64) {
	denial, err := wp.store.GetDenial(ctx, denialID)
	if err != nil {
		log.Printf("notification: failed to load denial %d: %v", denialID, err)
		return
	}

	attempt, err := wp.store.GetCheckInAttempt(ctx, denial.CheckInAttemptID)
	if err != nil {
		log.Printf("notification: failed to load attempt %d: %v", denial.CheckInAttemptID, err)
		return
	}

	subs, err := wp.store.SubscriptionsForProject(ctx, attempt.ProjectID)
	if err != nil {
		log.Printf("notification: failed to load subscriptions for project %d: %v", attempt.ProjectID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(denialAlert{
		Title:      "Check-in denied",
		Body:       fmt.Sprintf("Labourer %d denied: %s", attempt.LabourerID, denial.Reason),
		AttemptID:  attempt.ID,
		DenialID:   denial.ID,
		LabourerID: attempt.LabourerID,
		Reason:     string(denial.Reason),
	})
	if err != nil {
		log.Printf("notification: failed to marshal alert payload: %v", err)
		return
	}

	delivered := 0
	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256DH, Auth: sub.Auth},
		}
		resp, err := wp.sender.Send(payload, target, wp.webpush)
		if err != nil {
			log.Printf("notification: push to %s failed: %v", sub.Endpoint, err)
			continue
		}
		if resp != nil {
			resp.Body.Close()
			// Gone subscriptions are pruned so we stop retrying them.
			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
				if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
					log.Printf("notification: failed to prune subscription %s: %v", sub.Endpoint, err)
				}
				continue
			}
		}
		delivered++
	}

	if delivered > 0 {
		if err := wp.store.MarkSupervisorNotified(ctx, denial.ID, time.Now().UTC()); err != nil {
			log.Printf("notification: failed to mark denial %d notified: %v", denial.ID, err)
		}
	}
}
