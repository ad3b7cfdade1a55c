package events

import "context"

// Publisher fans out posting-run events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, interface{}) error { return nil }
