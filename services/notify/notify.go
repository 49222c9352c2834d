// Package notify delivers alert notifications and monitor status updates
// to the presentation layer. Delivery is fire-and-forget: a failing sink
// never interrupts evaluation of the remaining rules or items.
package notify

import (
	"log"

	"twse_alert_backend/models"
)

// Sink receives alert notifications.
type Sink interface {
	Notify(n models.Notification)
}

// StatusSink additionally receives monitor status changes.
type StatusSink interface {
	Sink
	PublishStatus(status string)
}

// LogNotifier writes notifications to the process log. It is always
// wired in so alerts remain visible even with no client connected.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(n models.Notification) {
	log.Printf("ALERT [%s] %s - %s", n.Code, n.Title, n.Body)
}

// Multi fans a notification out to several sinks. Each dispatch is
// isolated: a panicking sink is logged and the rest still run.
type Multi []Sink

// Notify dispatches to every sink.
func (m Multi) Notify(n models.Notification) {
	for _, sink := range m {
		dispatch(sink, n)
	}
}

func dispatch(sink Sink, n models.Notification) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Notification dispatch failed: %v", r)
		}
	}()
	sink.Notify(n)
}
