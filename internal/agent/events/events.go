// Package events carries one-way signals between the agent's components.
//
// Publishing is fire-and-forget. Synchronous handlers run on the publisher's
// goroutine while the bus is locked, so they must not publish themselves;
// use the Async variants for handlers that do.
package events

import (
	"github.com/asaskevich/EventBus"
)

const (
	// TopicAutosyncToggle carries (enabled bool, foldersJSON string).
	TopicAutosyncToggle = "autosync:toggle"
	// TopicOpenSettings and TopicOpenLogs carry no payload.
	TopicOpenSettings = "ui:open-settings"
	TopicOpenLogs     = "ui:open-logs"
	// TopicSyncCompleted carries a SyncCompleted.
	TopicSyncCompleted = "sync:completed"
	// TopicNotify carries a Notification.
	TopicNotify = "notify:desktop"
)

type Notification struct {
	Title   string
	Message string
	Sound   bool
}

// SyncCompleted summarizes one orchestrated sync pass.
type SyncCompleted struct {
	Target  string
	Failed  bool
	Status  int
	Message string
	Kind    string
}

type Bus struct {
	bus EventBus.Bus
}

func New() *Bus {
	return &Bus{bus: EventBus.New()}
}

func (b *Bus) Publish(topic string, args ...any) {
	b.bus.Publish(topic, args...)
}

func (b *Bus) Subscribe(topic string, fn any) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync runs fn on its own goroutine, one call at a time.
func (b *Bus) SubscribeAsync(topic string, fn any) error {
	return b.bus.SubscribeAsync(topic, fn, true)
}

// Unsubscribe removes fn. Handlers are matched by function identity, so keep
// the value passed to Subscribe.
func (b *Bus) Unsubscribe(topic string, fn any) error {
	return b.bus.Unsubscribe(topic, fn)
}

// WaitAsync blocks until every in-flight async handler returns.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}

func (b *Bus) PublishToggle(enabled bool, foldersJSON string) {
	b.Publish(TopicAutosyncToggle, enabled, foldersJSON)
}

func (b *Bus) OnToggle(fn func(enabled bool, foldersJSON string)) error {
	return b.Subscribe(TopicAutosyncToggle, fn)
}

func (b *Bus) PublishNotification(n Notification) {
	b.Publish(TopicNotify, n)
}

func (b *Bus) OnNotification(fn func(Notification)) error {
	return b.Subscribe(TopicNotify, fn)
}

func (b *Bus) PublishSyncCompleted(e SyncCompleted) {
	b.Publish(TopicSyncCompleted, e)
}

func (b *Bus) OnSyncCompleted(fn func(SyncCompleted)) error {
	return b.Subscribe(TopicSyncCompleted, fn)
}

func (b *Bus) OpenSettings() { b.Publish(TopicOpenSettings) }

func (b *Bus) OpenLogs() { b.Publish(TopicOpenLogs) }

func (b *Bus) OnOpenSettings(fn func()) error { return b.Subscribe(TopicOpenSettings, fn) }

func (b *Bus) OnOpenLogs(fn func()) error { return b.Subscribe(TopicOpenLogs, fn) }
