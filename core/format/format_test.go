package format

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/phyloconv/core/errors"
)

func registerTestFormats(t *testing.T) {
	t.Helper()
	Register(&Format{ID: "test-magic", Magic: []string{"#TESTFMT"}})
	Register(&Format{ID: "test-fallback", Fallback: func(p []byte) bool { return bytes.HasPrefix(p, []byte(">")) }})
	t.Cleanup(func() {
		unregister("test-magic")
		unregister("test-fallback")
	})
}

func TestRegisterAndGet(t *testing.T) {
	registerTestFormats(t)

	if f := Get("test-magic"); f == nil || f.ID != "test-magic" {
		t.Fatalf("Get(test-magic) = %v", f)
	}
	if f := Get("missing"); f != nil {
		t.Errorf("Get(missing) = %v, want nil", f)
	}

	var ids []string
	for _, f := range List() {
		ids = append(ids, f.ID)
	}
	joined := strings.Join(ids, ",")
	if !strings.Contains(joined, "test-fallback,test-magic") {
		t.Errorf("List() = %v, want sorted test formats", ids)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	registerTestFormats(t)
	defer func() {
		if recover() == nil {
			t.Error("Register() with duplicate id did not panic")
		}
	}()
	Register(&Format{ID: "test-magic"})
}

func TestDetect(t *testing.T) {
	registerTestFormats(t)

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"magic", "#TESTFMT\nbody", "test-magic", true},
		{"magic case and whitespace", "\n  #testfmt", "test-magic", true},
		{"byte order mark", "\xEF\xBB\xBF#TESTFMT", "test-magic", true},
		{"fallback", ">seq1\nACGT", "test-fallback", true},
		{"unknown", "%%%", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Detect([]byte(tt.input))
			if !tt.wantOK {
				if !errors.Is(err, errors.ErrUnsupported) {
					t.Fatalf("Detect() error = %v, want unsupported", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if f.ID != tt.want {
				t.Errorf("Detect() = %s, want %s", f.ID, tt.want)
			}
		})
	}
}

func TestOpenDecompressesXZ(t *testing.T) {
	registerTestFormats(t)

	var compressed bytes.Buffer
	xw, err := xz.NewWriter(&compressed)
	if err != nil {
		t.Fatalf("xz.NewWriter() error = %v", err)
	}
	if _, err := io.WriteString(xw, "#TESTFMT\npayload\n"); err != nil {
		t.Fatal(err)
	}
	if err := xw.Close(); err != nil {
		t.Fatal(err)
	}

	f, r, err := Open(&compressed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if f.ID != "test-magic" {
		t.Errorf("Open() format = %s, want test-magic", f.ID)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "#TESTFMT\npayload\n" {
		t.Errorf("Open() body = %q", body)
	}
}

func TestOpenAs(t *testing.T) {
	registerTestFormats(t)

	f, r, err := OpenAs(strings.NewReader(">x"), "test-magic")
	if err != nil {
		t.Fatalf("OpenAs() error = %v", err)
	}
	if f.ID != "test-magic" {
		t.Errorf("OpenAs() = %s", f.ID)
	}
	body, _ := io.ReadAll(r)
	if string(body) != ">x" {
		t.Errorf("OpenAs() body = %q", body)
	}

	if _, _, err := OpenAs(strings.NewReader(""), "missing"); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("OpenAs(missing) error = %v", err)
	}
}
