package plusvibe

import (
	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/connector/registry"
)

func init() {
	registry.RegisterSource("plusvibe", func(_ *config.BaseConfig) (core.Source, error) {
		return NewSource(), nil
	})
}
