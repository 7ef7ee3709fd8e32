package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
)

func TestRegisterAndCreateSource(t *testing.T) {
	RegisterSource("test-source", func(_ *config.BaseConfig) (core.Source, error) {
		return nil, nil
	})

	_, err := NewSource("test-source", nil)
	require.NoError(t, err)

	assert.Contains(t, SourceNames(), "test-source")
}

func TestUnknownSource(t *testing.T) {
	_, err := NewSource("does-not-exist", nil)
	assert.Error(t, err)
}

func TestUnknownDestination(t *testing.T) {
	_, err := NewDestination("does-not-exist", nil)
	assert.Error(t, err)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	RegisterDestination("dup-dest", func(_ *config.BaseConfig) (core.Destination, error) {
		return nil, nil
	})

	assert.Panics(t, func() {
		RegisterDestination("dup-dest", func(_ *config.BaseConfig) (core.Destination, error) {
			return nil, nil
		})
	})
}
