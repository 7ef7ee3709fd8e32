// Package comet is a SaaS API extraction platform. It provides source
// connectors that pull data from REST APIs (Customer.io, Google Sheets,
// PlusVibeAI, Snapchat Ads), apply incremental time-window filtering,
// resolve parent/child resource dependencies, and hand normalized record
// streams to a downstream sink.
//
// The main entry points are:
//   - pkg/connector/registry: register and create connectors
//   - pkg/connector/sdk: pagination, incremental filtering, fan-out
//   - internal/pipeline: drive a source's resource catalog into a sink
//   - cmd/comet: command-line interface
package comet
