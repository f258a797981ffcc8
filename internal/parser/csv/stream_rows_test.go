package csv

import (
	"context"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"cityecon/internal/config"
	"cityecon/internal/transformer"
)

func collectRows(t *testing.T, src string, columns []string, opt config.Options) [][]any {
	t.Helper()

	out := make(chan *transformer.Row, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- StreamRows(context.Background(), io.NopCloser(strings.NewReader(src)), columns, opt, out, nil)
	}()

	var got [][]any
	for row := range out {
		got = append(got, append([]any(nil), row.V...))
		row.Free()
	}
	if err := <-errCh; err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	return got
}

func TestStreamRowsAlignsColumns(t *testing.T) {
	src := "b,a,extra\n2,1,x\n,3,y\n"
	got := collectRows(t, src, []string{"a", "b", "missing"}, nil)

	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	want0 := []any{"1", "2", nil}
	for i, v := range want0 {
		if got[0][i] != v {
			t.Errorf("row0[%d] = %#v, want %#v", i, got[0][i], v)
		}
	}
	// Empty field becomes nil, never "".
	if got[1][1] != nil {
		t.Errorf("row1[b] = %#v, want nil", got[1][1])
	}
}

func TestStreamRowsTrimsHeaders(t *testing.T) {
	// Some attribute files ship headers with trailing spaces.
	src := "id,maxOccupancy \n7,25\n"
	got := collectRows(t, src, []string{"id", "maxOccupancy"}, nil)

	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	if got[0][1] != "25" {
		t.Errorf("maxOccupancy = %#v, want %q", got[0][1], "25")
	}
}

func TestStreamRowsHeaderMap(t *testing.T) {
	src := "old_name\nv\n"
	got := collectRows(t, src, []string{"new_name"}, config.Options{
		"header_map": map[string]any{"old_name": "new_name"},
	})
	if len(got) != 1 || got[0][0] != "v" {
		t.Fatalf("got %v", got)
	}
}

func TestStreamRowsBOM(t *testing.T) {
	src := "\uFEFFa,b\n1,2\n"
	got := collectRows(t, src, []string{"a", "b"}, nil)
	if len(got) != 1 || got[0][0] != "1" {
		t.Fatalf("BOM header not stripped: %v", got)
	}
}

func TestStreamRowsLatin1(t *testing.T) {
	enc := charmap.ISO8859_1.NewEncoder()
	raw, err := enc.String("name\ncafé\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := collectRows(t, raw, []string{"name"}, config.Options{"encoding": "latin1"})
	if len(got) != 1 || got[0][0] != "café" {
		t.Fatalf("latin1 decode: got %v", got)
	}
}

func TestStreamRowsUnsupportedEncoding(t *testing.T) {
	out := make(chan *transformer.Row, 1)
	err := StreamRows(context.Background(), io.NopCloser(strings.NewReader("a\n1\n")),
		[]string{"a"}, config.Options{"encoding": "ebcdic"}, out, nil)
	if err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}

func TestStreamRowsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *transformer.Row) // unbuffered, nobody reading
	err := StreamRows(ctx, io.NopCloser(strings.NewReader("a\n1\n2\n")), []string{"a"}, nil, out, nil)
	if err == nil {
		t.Fatal("expected context error")
	}
}
