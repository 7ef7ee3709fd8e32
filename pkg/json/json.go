// Package json provides pooled JSON serialization helpers built on
// goccy/go-json. Decoders and buffers are recycled to keep per-page
// decode costs flat while paginating large collections.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetDecoder returns a decoder reading from r.
func GetDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// GetBuffer returns a pooled buffer for JSON assembly.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<20 {
		return // don't retain oversized buffers
	}
	bufferPool.Put(buf)
}

// Marshal serializes v to JSON.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal deserializes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalToWriter serializes v directly to w using a pooled buffer.
func MarshalToWriter(v interface{}, w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
