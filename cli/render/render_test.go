package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "json", want: FormatJSON},
		{in: "JSON", want: FormatJSON},
		{in: "table", want: FormatTable},
		{in: "yaml", want: FormatYAML},
		{in: "", want: ""},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, &buf)

	if err := r.Render(sample{Name: "chorus", Count: 3}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.Name != "chorus" || got.Count != 3 {
		t.Errorf("round-trip = %+v", got)
	}
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, &buf)

	if err := r.Render(map[string]string{"name": "chorus"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "name: chorus") {
		t.Errorf("yaml output = %q", buf.String())
	}
}

func TestRender_TableStruct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render(sample{Name: "chorus", Count: 3}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	out := buf.String()
	// json tag names, not Go field names
	if !strings.Contains(out, "name:") || !strings.Contains(out, "count:") {
		t.Errorf("table output = %q", out)
	}
	if !strings.Contains(out, "chorus") {
		t.Errorf("table output missing value: %q", out)
	}
}

func TestRender_TableMap(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render(map[string]int{"streams": 2}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "streams:") {
		t.Errorf("table output = %q", buf.String())
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(Format("csv"), &buf)

	if err := r.Render(sample{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
