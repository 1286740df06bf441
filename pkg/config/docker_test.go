package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHostForDocker_NonLocalHostsUnchanged(t *testing.T) {
	for _, host := range []string{"mydb.example.com", "192.168.1.100", "host.docker.internal"} {
		assert.Equal(t, host, ResolveHostForDocker(host))
	}
}

func TestResolveHost(t *testing.T) {
	assert.Equal(t, "host.docker.internal", resolveHost("localhost"))
	assert.Equal(t, "host.docker.internal", resolveHost("127.0.0.1"))
	assert.Equal(t, "ollama.internal", resolveHost("ollama.internal"))
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"http://localhost:11434", "http://host.docker.internal:11434"},
		{"http://127.0.0.1:11434/v1", "http://host.docker.internal:11434/v1"},
		{"http://localhost/v1", "http://host.docker.internal/v1"},
		{"https://api.openai.com/v1", "https://api.openai.com/v1"},
		{"not a url", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolveURL(tt.input))
		})
	}
}
