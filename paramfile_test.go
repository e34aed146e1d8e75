package ngc

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadParameters(t *testing.T) {
	vals, err := ReadParameters(strings.NewReader(`; saved parameters
# comment

5161=1.5
5221 = -2
  100	3
5601 0.25
`), "test")
	if err != nil {
		t.Fatalf("ReadParameters() failed with %s", err)
	}
	want := map[int]float64{5161: 1.5, 5221: -2, 100: 3, 5601: 0.25}
	if diff := cmp.Diff(want, vals); diff != "" {
		t.Errorf("ReadParameters() (-want +got):\n%s", diff)
	}
}

func TestReadParametersErrors(t *testing.T) {
	cases := []string{
		"5161\n",
		"5161=1=2\n",
		"x=1\n",
		"0=1\n",
		"5602=1\n",
		"100=abc\n",
		"100 1 2\n",
	}

	for _, s := range cases {
		if _, err := ReadParameters(strings.NewReader(s), "test"); err == nil {
			t.Errorf("ReadParameters(%q) did not fail", s)
		}
	}
}

func TestWriteParameters(t *testing.T) {
	vals := map[int]float64{5221: 10, 31: -0.125, 5161: 0}

	var buf bytes.Buffer
	if err := WriteParameters(&buf, vals); err != nil {
		t.Fatalf("WriteParameters() failed with %s", err)
	}
	want := "31=-0.125\n5161=0\n5221=10\n"
	if buf.String() != want {
		t.Errorf("WriteParameters() got %q want %q", buf.String(), want)
	}

	got, err := ReadParameters(&buf, "buf")
	if err != nil {
		t.Fatalf("ReadParameters() failed with %s", err)
	}
	if diff := cmp.Diff(vals, got); diff != "" {
		t.Errorf("ReadParameters(WriteParameters()) (-want +got):\n%s", diff)
	}
}

func TestFileStore(t *testing.T) {
	fst := FileStore{Path: filepath.Join(t.TempDir(), "ngc.var")}

	vals, err := fst.Load()
	if err != nil {
		t.Fatalf("Load() of missing file failed with %s", err)
	} else if len(vals) != 0 {
		t.Errorf("Load() of missing file got %v", vals)
	}

	for _, want := range []map[int]float64{
		{5161: 1, 5162: 2, 200: 4},
		{5221: 3},
	} {
		if err := fst.Save(want); err != nil {
			t.Fatalf("Save() failed with %s", err)
		}
		got, err := fst.Load()
		if err != nil {
			t.Fatalf("Load() failed with %s", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Load() (-want +got):\n%s", diff)
		}
	}

	bad := FileStore{Path: filepath.Join(t.TempDir(), "missing", "ngc.var")}
	if err := bad.Save(map[int]float64{1: 1}); err == nil {
		t.Errorf("Save() to missing directory did not fail")
	}
}
