package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Transcript is a self-contained export of one session.
type Transcript struct {
	Session    *Session   `json:"session"`
	Responses  []Response `json:"responses"`
	TotalCost  float64    `json:"total_cost"`
	ExportedAt time.Time  `json:"exported_at"`
}

// Transcript assembles the export for a session. It returns nil, nil when
// the session does not exist.
func (s *Store) Transcript(ctx context.Context, id string) (*Transcript, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	responses, err := s.GetResponses(ctx, id)
	if err != nil {
		return nil, err
	}

	t := &Transcript{Session: sess, Responses: responses, ExportedAt: time.Now().UTC()}
	for _, r := range responses {
		t.TotalCost += r.EstimatedCost
	}
	return t, nil
}

// WriteTranscript encodes t as indented JSON, zstd-compressed when compress is set.
func WriteTranscript(w io.Writer, t *Transcript, compress bool) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if !compress {
		_, err := w.Write(append(data, '\n'))
		return err
	}

	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("compress transcript: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("flush zstd writer: %w", err)
	}
	return nil
}

// ReadTranscript decodes a transcript written by WriteTranscript, detecting
// compression from the stream header.
func ReadTranscript(r io.Reader) (*Transcript, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		decoder, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer decoder.Close()
		src = decoder
	}

	var t Transcript
	if err := json.NewDecoder(src).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}
