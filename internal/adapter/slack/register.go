package slack

import "github.com/Strob0t/OpsForge/internal/port/notifier"

// The slack channel needs an incoming-webhook URL; without one it is left
// out at startup instead of failing every deploy notification.
func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		url := settings[notifier.SettingWebhookURL]
		if url == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewNotifier(url), nil
	})
}
