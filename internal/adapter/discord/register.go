package discord

import "github.com/Strob0t/OpsForge/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		url := settings[notifier.SettingWebhookURL]
		if url == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewNotifier(url), nil
	})
}
