// Package jsonl implements a JSON Lines file destination. Each
// resource is written to its own file; replace resources truncate the
// file, merge resources upsert by primary key against the existing
// contents.
package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/base"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/errors"
	cometjson "github.com/ajitpratap0/comet/pkg/json"
)

// Destination writes record streams to JSON Lines files under a
// configured directory. The directory is taken from the "directory"
// credential entry and defaults to ./data.
type Destination struct {
	*base.BaseConnector

	directory string
}

// NewDestination creates an uninitialized JSONL destination.
func NewDestination() *Destination {
	return &Destination{BaseConnector: base.NewBaseConnector("jsonl", "1.0.0")}
}

// Initialize creates the output directory.
func (d *Destination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	d.directory = cfg.Security.Credentials["directory"]
	if d.directory == "" {
		d.directory = "./data"
	}

	if err := os.MkdirAll(d.directory, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create output directory").
			WithDetail("directory", d.directory)
	}

	d.Logger.Info("jsonl destination initialized", zap.String("directory", d.directory))
	return nil
}

// Write drains a record stream into the resource's file, honoring
// its write disposition.
func (d *Destination) Write(ctx context.Context, resource *core.ResourceDef, stream *core.RecordStream) error {
	var incoming []map[string]interface{}

	for record := range stream.Records {
		row := make(map[string]interface{}, len(record.Data))
		for k, v := range record.Data {
			row[k] = v
		}
		incoming = append(incoming, row)
		record.Release()
	}
	select {
	case err := <-stream.Errors:
		if err != nil {
			return err
		}
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(d.directory, resource.Name+".jsonl")

	switch resource.WriteDisposition {
	case core.WriteReplace:
		return d.writeAll(path, incoming)
	case core.WriteMerge:
		return d.merge(path, resource, incoming)
	default:
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("unsupported write disposition %q", resource.WriteDisposition))
	}
}

// merge upserts incoming records into the existing file by primary
// key, preserving existing rows the run did not touch.
func (d *Destination) merge(path string, resource *core.ResourceDef, incoming []map[string]interface{}) error {
	existing, order, err := d.readExisting(path, resource)
	if err != nil {
		return err
	}

	for _, row := range incoming {
		key := primaryKeyOf(row, resource.PrimaryKey)
		if _, seen := existing[key]; !seen {
			order = append(order, key)
		}
		existing[key] = row
	}

	rows := make([]map[string]interface{}, 0, len(order))
	for _, key := range order {
		rows = append(rows, existing[key])
	}
	return d.writeAll(path, rows)
}

func (d *Destination) readExisting(path string, resource *core.ResourceDef) (map[string]map[string]interface{}, []string, error) {
	existing := make(map[string]map[string]interface{})
	var order []string

	f, err := os.Open(path) //nolint:gosec // G304: path is derived from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return existing, order, nil
		}
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to open existing file")
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var row map[string]interface{}
		if err := cometjson.Unmarshal(scanner.Bytes(), &row); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrorTypeData, "corrupt line in existing file").
				WithDetail("path", path)
		}
		key := primaryKeyOf(row, resource.PrimaryKey)
		if _, seen := existing[key]; !seen {
			order = append(order, key)
		}
		existing[key] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan existing file")
	}

	return existing, order, nil
}

// writeAll writes rows to a temp file and renames it into place so a
// crash mid-write never leaves a truncated table.
func (d *Destination) writeAll(path string, rows []map[string]interface{}) error {
	tmp, err := os.CreateTemp(d.directory, ".jsonl-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create temp file")
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, row := range rows {
		// Encode appends the line terminator itself.
		if err := cometjson.MarshalToWriter(row, w); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record")
		}
	}

	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to flush output")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to close output")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to move output into place")
	}
	return nil
}

// primaryKeyOf renders a row's primary key as a single string. Rows
// without a declared key fall back to their full serialized form.
func primaryKeyOf(row map[string]interface{}, key []string) string {
	if len(key) == 0 {
		data, _ := cometjson.Marshal(row)
		return string(data)
	}

	parts := make([]string, len(key))
	for i, field := range key {
		parts[i] = fmt.Sprintf("%v", row[field])
	}
	return strings.Join(parts, "\x1f")
}
