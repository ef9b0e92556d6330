package notifier

import (
	"fmt"
	"slices"
	"sync"
)

// SettingWebhookURL is the setting the chat channels (slack, discord) post to.
const SettingWebhookURL = "webhook_url"

// Factory builds a delivery channel for deploy, rollback, incident and task
// notifications from its settings.
type Factory func(settings map[string]string) (Notifier, error)

var (
	mu       sync.RWMutex
	channels = make(map[string]Factory)
)

// Register adds a delivery channel. Channel adapters call it from init(),
// so importing an adapter is what makes its channel configurable.
func Register(channel string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := channels[channel]; exists {
		panic(fmt.Sprintf("notifier: channel %q registered twice", channel))
	}
	channels[channel] = factory
}

// New builds the named channel.
func New(channel string, settings map[string]string) (Notifier, error) {
	mu.RLock()
	factory, ok := channels[channel]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("notifier: unknown channel %q", channel)
	}
	n, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("notifier: channel %q: %w", channel, err)
	}
	return n, nil
}

// Available returns the registered channel names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build creates every registered channel that has settings, in channel
// order. Channels that fail to build are reported in skipped and left out;
// settings for unregistered channels are reported the same way.
func Build(settings map[string]map[string]string) (built []Notifier, skipped map[string]error) {
	skipped = map[string]error{}
	for channel := range settings {
		if !slices.Contains(Available(), channel) {
			skipped[channel] = fmt.Errorf("notifier: unknown channel %q", channel)
		}
	}
	for _, channel := range Available() {
		s, ok := settings[channel]
		if !ok {
			continue
		}
		n, err := New(channel, s)
		if err != nil {
			skipped[channel] = err
			continue
		}
		built = append(built, n)
	}
	return built, skipped
}
