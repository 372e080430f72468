// Package trace holds the captured exception payload a diagnostic page is
// rendered from, and its wire codecs.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format selects a payload codec
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Payload is the initial state of a diagnostic page
type Payload struct {
	Title    string  `json:"title" msgpack:"title"`
	Subtitle string  `json:"subtitle" msgpack:"subtitle"`
	Trace    []Frame `json:"trace,omitempty" msgpack:"trace,omitempty"`
}

// HasTrace reports whether there is at least one frame to show.
func (p Payload) HasTrace() bool {
	return len(p.Trace) > 0
}

// Frame is one stack entry. On the wire it is the positional array
// [file, line, function, code].
type Frame struct {
	File     string
	Line     int
	Function string
	Code     string
}

// Location returns the "File <file>:<line>" label.
func (f Frame) Location() string {
	return "File " + f.File + ":" + strconv.Itoa(f.Line)
}

// Snippet returns the source to highlight. Blank code becomes a single
// space so the highlight target is never collapsed.
func (f Frame) Snippet() string {
	if strings.TrimSpace(f.Code) == "" {
		return " "
	}
	return f.Code
}

func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.File, f.Line, f.Function, f.Code})
}

// UnmarshalJSON decodes the positional form. Missing trailing entries and
// nulls leave the zero value; extra entries are ignored.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("frame must be an array: %w", err)
	}

	*f = Frame{}
	targets := []any{&f.File, &f.Line, &f.Function, &f.Code}
	for i, raw := range fields {
		if i >= len(targets) {
			break
		}
		if err := json.Unmarshal(raw, targets[i]); err != nil {
			return fmt.Errorf("frame field %d: %w", i, err)
		}
	}
	return nil
}

func (f Frame) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := enc.EncodeString(f.File); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(f.Line)); err != nil {
		return err
	}
	if err := enc.EncodeString(f.Function); err != nil {
		return err
	}
	return enc.EncodeString(f.Code)
}

func (f *Frame) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return fmt.Errorf("frame must be an array: %w", err)
	}

	*f = Frame{}
	for i := 0; i < n; i++ {
		switch i {
		case 0:
			f.File, err = dec.DecodeString()
		case 1:
			var line int64
			line, err = dec.DecodeInt64()
			f.Line = int(line)
		case 2:
			f.Function, err = dec.DecodeString()
		case 3:
			f.Code, err = dec.DecodeString()
		default:
			err = dec.Skip()
		}
		if err != nil {
			return fmt.Errorf("frame field %d: %w", i, err)
		}
	}
	return nil
}

// FormatFromPath picks a codec from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// FormatFromContentType maps an HTTP Content-Type to a codec.
func FormatFromContentType(contentType string) Format {
	if strings.Contains(contentType, "msgpack") {
		return FormatMsgpack
	}
	return FormatJSON
}

// Decode reads one payload in the given format
func Decode(r io.Reader, format Format) (Payload, error) {
	var p Payload
	switch format {
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
			return Payload{}, fmt.Errorf("failed to decode msgpack payload: %w", err)
		}
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&p); err != nil {
			return Payload{}, fmt.Errorf("failed to decode json payload: %w", err)
		}
	default:
		return Payload{}, fmt.Errorf("unknown payload format %q", format)
	}
	return p, nil
}

// Encode writes one payload in the given format
func Encode(w io.Writer, format Format, p Payload) error {
	switch format {
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(p); err != nil {
			return fmt.Errorf("failed to encode msgpack payload: %w", err)
		}
	case FormatJSON, "":
		if err := json.NewEncoder(w).Encode(p); err != nil {
			return fmt.Errorf("failed to encode json payload: %w", err)
		}
	default:
		return fmt.Errorf("unknown payload format %q", format)
	}
	return nil
}
