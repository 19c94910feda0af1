package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/vaultlinks/internal/sse"
)

// SyncTag is the background sync tag registered by the client.
const SyncTag = "vault-links-sync"

// NotificationAction is a button shown on a notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is the payload published for a push message.
type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon,omitempty"`
	Badge   string               `json:"badge,omitempty"`
	Vibrate []int                `json:"vibrate,omitempty"`
	Data    map[string]any       `json:"data,omitempty"`
	Actions []NotificationAction `json:"actions,omitempty"`
}

// Sync handles a background sync request. No offline actions are queued, so
// it only records the tag.
func (w *Worker) Sync(_ context.Context, tag string) {
	w.logger.Info("worker: background sync", slog.String("tag", tag))
	if tag != SyncTag {
		return
	}
	w.logger.Info("worker: syncing vault links data")
	w.events.Publish(sse.Event{Type: "sync", Data: map[string]string{"tag": tag}})
}

// Push builds the static notification for a push message and publishes it.
func (w *Worker) Push(data string) Notification {
	w.logger.Info("worker: push received")

	body := data
	if body == "" {
		body = "New update available"
	}
	n := Notification{
		Title:   "VaultLinks",
		Body:    body,
		Icon:    "/manifest.json",
		Badge:   "/manifest.json",
		Vibrate: []int{100, 50, 100},
		Data: map[string]any{
			"dateOfArrival": time.Now().UnixMilli(),
			"primaryKey":    1,
		},
		Actions: []NotificationAction{
			{Action: "explore", Title: "Open VaultLinks", Icon: "/manifest.json"},
			{Action: "close", Title: "Close notification", Icon: "/manifest.json"},
		},
	}
	w.events.Publish(sse.Event{Type: "notification", Data: n})
	return n
}

// NotificationClick handles a click on a notification action. For "explore"
// it returns the window URL to open; other actions only close it.
func (w *Worker) NotificationClick(action string) (string, bool) {
	w.logger.Info("worker: notification click", slog.String("action", action))
	if action != "explore" {
		return "", false
	}
	w.events.Publish(sse.Event{Type: "window.open", Data: map[string]string{"url": "/"}})
	return "/", true
}
