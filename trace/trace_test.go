package trace

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Payload
		wantErr bool
	}{
		{
			name:  "header only",
			input: `{"title":"TypeError","subtitle":"at line 42"}`,
			want:  Payload{Title: "TypeError", Subtitle: "at line 42"},
		},
		{
			name:  "empty trace",
			input: `{"title":"TypeError","subtitle":"at line 42","trace":[]}`,
			want:  Payload{Title: "TypeError", Subtitle: "at line 42", Trace: []Frame{}},
		},
		{
			name:  "positional frames",
			input: `{"title":"ZeroDivisionError","subtitle":"division by zero","trace":[["app.py",10,"main","x = 1/0"],["app.py",20,"",""]]}`,
			want: Payload{
				Title:    "ZeroDivisionError",
				Subtitle: "division by zero",
				Trace: []Frame{
					{File: "app.py", Line: 10, Function: "main", Code: "x = 1/0"},
					{File: "app.py", Line: 20},
				},
			},
		},
		{
			name:  "nulls and short frames",
			input: `{"title":"E","subtitle":"","trace":[["lib.py",3,null,null],["lib.py"]]}`,
			want: Payload{
				Title: "E",
				Trace: []Frame{
					{File: "lib.py", Line: 3},
					{File: "lib.py"},
				},
			},
		},
		{
			name:  "extra entries ignored",
			input: `{"title":"E","subtitle":"","trace":[["lib.py",3,"f","pass",{"locals":{}}]]}`,
			want: Payload{
				Title: "E",
				Trace: []Frame{{File: "lib.py", Line: 3, Function: "f", Code: "pass"}},
			},
		},
		{
			name:    "frame as object",
			input:   `{"title":"E","subtitle":"","trace":[{"file":"lib.py"}]}`,
			wantErr: true,
		},
		{
			name:    "line as string",
			input:   `{"title":"E","subtitle":"","trace":[["lib.py","3"]]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.input), FormatJSON)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFrame_MarshalJSON_Positional(t *testing.T) {
	data, err := json.Marshal(Frame{File: "app.py", Line: 10, Function: "main", Code: "x = 1/0"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `["app.py",10,"main","x = 1/0"]`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestMsgpack_RoundTrip(t *testing.T) {
	p := Payload{
		Title:    "KeyError",
		Subtitle: "'user'",
		Trace: []Frame{
			{File: "views.py", Line: 7, Function: "index", Code: "return d['user']"},
			{File: "views.py", Line: 1},
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, FormatMsgpack, p); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(&buf, FormatMsgpack)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("Decode() = %+v, want %+v", got, p)
	}
}

func TestMsgpack_PositionalArrays(t *testing.T) {
	raw, err := msgpack.Marshal(map[string]any{
		"title":    "E",
		"subtitle": "s",
		"trace": [][]any{
			{"a.py", 3, nil, nil},
			{"b.py", 4, "g", "y()", "extra"},
		},
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := Decode(bytes.NewReader(raw), FormatMsgpack)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []Frame{
		{File: "a.py", Line: 3},
		{File: "b.py", Line: 4, Function: "g", Code: "y()"},
	}
	if !reflect.DeepEqual(got.Trace, want) {
		t.Errorf("Trace = %+v, want %+v", got.Trace, want)
	}
}

func TestFrame_Location(t *testing.T) {
	f := Frame{File: "/srv/app/app.py", Line: 10}
	if got := f.Location(); got != "File /srv/app/app.py:10" {
		t.Errorf("Location() = %q", got)
	}
}

func TestFrame_Snippet(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{code: "x = 1/0", want: "x = 1/0"},
		{code: "", want: " "},
		{code: "   ", want: " "},
		{code: "\t\n", want: " "},
		{code: "  pass", want: "  pass"},
	}

	for _, tt := range tests {
		if got := (Frame{Code: tt.code}).Snippet(); got != tt.want {
			t.Errorf("Snippet(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestPayload_HasTrace(t *testing.T) {
	if (Payload{}).HasTrace() {
		t.Error("nil trace reported as present")
	}
	if (Payload{Trace: []Frame{}}).HasTrace() {
		t.Error("empty trace reported as present")
	}
	if !(Payload{Trace: []Frame{{File: "a.py"}}}).HasTrace() {
		t.Error("non-empty trace reported as absent")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"trace.json":    FormatJSON,
		"trace.msgpack": FormatMsgpack,
		"trace.MP":      FormatMsgpack,
		"trace":         FormatJSON,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDecode_UnknownFormat(t *testing.T) {
	if _, err := Decode(strings.NewReader("{}"), Format("xml")); err == nil {
		t.Error("expected error for unknown format")
	}
}
