// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package events provides the in-process status event bus. Hub state
// snapshots are published after every ingest and status change; each SSE
// connection subscribes to its own copy of the stream.
//
// The bus is a Watermill GoChannel pub/sub: the hub runs as a single
// process, so no broker is involved, but publishers and subscribers keep
// the decoupled message-passing shape.
package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/polarhub/internal/models"
)

// TopicStatus carries serialized models.StatusSnapshot messages.
const TopicStatus = "hub.status"

// Bus wraps the GoChannel pub/sub for status snapshots.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates the status bus. Slow SSE consumers buffer up to 64 snapshots
// before publishes block; the hub publishes from ingest goroutines, so the
// buffer keeps a stalled dashboard from backpressuring ingest.
func New() *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, NewWatermillLogger())
	return &Bus{pubsub: pubsub}
}

// PublishSnapshot serializes and publishes one status snapshot.
func (b *Bus) PublishSnapshot(snapshot models.StatusSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubsub.Publish(TopicStatus, msg)
}

// Subscribe returns a per-subscriber snapshot stream. The stream closes
// when ctx is canceled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicStatus)
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
