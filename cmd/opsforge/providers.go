package main

// Notification channels register themselves with the notifier registry.
import (
	_ "github.com/Strob0t/OpsForge/internal/adapter/discord"
	_ "github.com/Strob0t/OpsForge/internal/adapter/email"
	_ "github.com/Strob0t/OpsForge/internal/adapter/slack"
)
