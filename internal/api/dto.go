package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultlinks/internal/worker"
)

// MessageRequest is the body of POST /__worker/message.
type MessageRequest struct {
	Type string `json:"type" example:"GET_VERSION" validate:"required"`
}

// Validate implements validation.Validatable.
func (r MessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required,
			validation.In(worker.MessageSkipWaiting, worker.MessageGetVersion)),
	)
}

// MessageResponse answers a control message.
type MessageResponse struct {
	Version string `json:"version,omitempty" example:"vault-links-v1.0.0"`
}

// SyncRequest is the body of POST /__worker/sync.
type SyncRequest struct {
	Tag string `json:"tag" example:"vault-links-sync" validate:"required"`
}

// Validate implements validation.Validatable.
func (r SyncRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Tag, validation.Required),
	)
}

// PushRequest is the body of POST /__worker/push. Data may be empty.
type PushRequest struct {
	Data string `json:"data" example:"New update available"`
}

// ClickRequest is the body of POST /__worker/notificationclick.
type ClickRequest struct {
	Action string `json:"action" example:"explore"`
}

// ClickResponse reports whether a window should be opened.
type ClickResponse struct {
	Open bool   `json:"open"`
	URL  string `json:"url,omitempty" example:"/"`
}

// SyncResponse acknowledges a sync request.
type SyncResponse struct {
	Tag string `json:"tag" example:"vault-links-sync"`
}

// StateResponse is the worker state (aliased from the worker package).
type StateResponse = worker.Info

// Notification is the push notification payload (aliased from the worker package).
type Notification = worker.Notification
