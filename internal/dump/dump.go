// Package dump captures reconstructed frames for offline inspection and
// encodes them as JSON or msgpack.
package dump

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/session"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

// Format selects the snapshot encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatMsgpack
)

func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	default:
		return 0, fmt.Errorf("unknown dump format %q", name)
	}
}

func (f Format) String() string {
	if f == FormatMsgpack {
		return "msgpack"
	}
	return "json"
}

// Snapshot is one frame with the entity states it references.
type Snapshot struct {
	Level       session.Level       `json:"level" msgpack:"level"`
	Frame       frame.Frame         `json:"frame" msgpack:"frame"`
	Entities    []state.EntityState `json:"entities" msgpack:"entities"`
	Diagnostics []string            `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
}

// Source is the part of a session a snapshot is taken from.
type Source interface {
	Level() session.Level
	Frame() frame.Frame
	FrameEntities(f frame.Frame) ([]state.EntityState, error)
}

// Capture copies the most recent frame of src.
func Capture(src Source) (Snapshot, error) {
	f := src.Frame()
	snap := Snapshot{
		Level:       src.Level(),
		Frame:       f,
		Diagnostics: diagnostics(f.Diagnostics),
	}
	entities, err := src.FrameEntities(f)
	if err != nil {
		return snap, fmt.Errorf("capture frame %d: %w", f.ServerFrame, err)
	}
	snap.Entities = entities
	return snap, nil
}

func diagnostics(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func Marshal(snap Snapshot, format Format) ([]byte, error) {
	if format == FormatMsgpack {
		return msgpack.Marshal(&snap)
	}
	return json.Marshal(snap)
}

func Unmarshal(data []byte, format Format) (Snapshot, error) {
	var snap Snapshot
	var err error
	if format == FormatMsgpack {
		err = msgpack.Unmarshal(data, &snap)
	} else {
		err = json.Unmarshal(data, &snap)
	}
	return snap, err
}

// Writer streams snapshots: one JSON document per line, or back to back
// msgpack values.
type Writer struct {
	format Format
	json   *json.Encoder
	mp     *msgpack.Encoder
	count  int
}

func NewWriter(w io.Writer, format Format) *Writer {
	dw := &Writer{format: format}
	if format == FormatMsgpack {
		dw.mp = msgpack.NewEncoder(w)
	} else {
		dw.json = json.NewEncoder(w)
	}
	return dw
}

func (w *Writer) Write(snap Snapshot) error {
	var err error
	if w.mp != nil {
		err = w.mp.Encode(&snap)
	} else {
		err = w.json.Encode(snap)
	}
	if err != nil {
		return fmt.Errorf("dump snapshot %d: %w", w.count, err)
	}
	w.count++
	return nil
}

func (w *Writer) Count() int {
	return w.count
}

// Reader decodes a stream produced by Writer.
type Reader struct {
	json *json.Decoder
	mp   *msgpack.Decoder
}

func NewReader(r io.Reader, format Format) *Reader {
	if format == FormatMsgpack {
		return &Reader{mp: msgpack.NewDecoder(r)}
	}
	return &Reader{json: json.NewDecoder(r)}
}

// Next returns io.EOF after the last snapshot.
func (r *Reader) Next() (Snapshot, error) {
	var snap Snapshot
	var err error
	if r.mp != nil {
		err = r.mp.Decode(&snap)
	} else {
		err = r.json.Decode(&snap)
	}
	return snap, err
}
