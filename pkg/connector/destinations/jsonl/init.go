package jsonl

import (
	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/connector/registry"
)

func init() {
	registry.RegisterDestination("jsonl", func(_ *config.BaseConfig) (core.Destination, error) {
		return NewDestination(), nil
	})
}
