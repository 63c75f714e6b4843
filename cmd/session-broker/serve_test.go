package main

import (
	"testing"

	"github.com/brizzai/session-broker/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
)

func TestAppOptions_Graph(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 0},
		OAuth:   config.OAuthConfig{ClientID: "id", ClientSecret: "secret", APIBaseURL: "https://discord.com/api/v9"},
		Session: config.SessionConfig{CookieName: "mm-s-id"},
		Entropy: config.EntropyConfig{Source: config.EntropySourceLocal},
	}

	assert.NoError(t, fx.ValidateApp(appOptions(cfg)...))
}

func TestRootCommand(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "version", "config"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("environment"))
}
