// Package snapshot exports a finished transcript as a zstd-compressed
// JSON document. Snapshots are written only on explicit user request
// and are never read back at client startup; the session itself keeps
// no history across restarts.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/traceline/traceline/internal/session"
	"github.com/traceline/traceline/internal/timefmt"
)

// Package-level encoder/decoder, safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("snapshot: init zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("snapshot: init zstd decoder: %v", err))
	}
}

// Document is the exported snapshot format.
type Document struct {
	SavedAt string          `json:"saved_at"` // ISO-8601, see timefmt
	Entries []session.Entry `json:"entries"`
}

// Encode serializes and compresses a transcript.
func Encode(entries []session.Entry) ([]byte, error) {
	doc := Document{SavedAt: timefmt.Format(time.Now()), Entries: entries}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decode decompresses and parses a snapshot document.
func Decode(data []byte) (*Document, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &doc, nil
}

// Write encodes the transcript and writes it to path.
func Write(path string, entries []session.Entry) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
