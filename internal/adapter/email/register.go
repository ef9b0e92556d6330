package email

import (
	"strconv"
	"strings"

	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		port := 587
		if p := settings["port"]; p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, err
			}
			port = n
		}
		var to []string
		for _, addr := range strings.Split(settings["to"], ",") {
			if a := strings.TrimSpace(addr); a != "" {
				to = append(to, a)
			}
		}
		return NewNotifier(SMTPConfig{
			Host:     settings["host"],
			Port:     port,
			From:     settings["from"],
			Password: settings["password"],
			To:       to,
		}), nil
	})
}
