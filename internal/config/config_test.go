package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectSensitiveEnv(t *testing.T) {
	environ := []string{
		"X_USERNAME=alice@example.com",
		"X_PASSWORD=hunter2",
		"X_EMPTY=",
		"PATH=/usr/bin",
		"XDG_CONFIG_HOME=/home/alice/.config",
		"not-an-assignment",
	}

	sensitive := CollectSensitiveEnv(environ)
	assert.Equal(t, map[string]string{
		"X_USERNAME": "alice@example.com",
		"X_PASSWORD": "hunter2",
	}, sensitive)
}

func TestCollectSensitiveEnvEmpty(t *testing.T) {
	assert.Empty(t, CollectSensitiveEnv(nil))
	assert.Empty(t, CollectSensitiveEnv([]string{"HOME=/root"}))
}
