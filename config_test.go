package ngc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func writeFile(t *testing.T, name, s string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(s), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	want := Config{
		Units:         "inch",
		ParameterFile: "ngc.var",
		BlockDelete:   true,
		OnError:       OnErrorSkip,
		Tools: []Tool{
			{Number: 1, Length: 2.5, Diameter: 0.25},
			{Number: 7, Diameter: 0.5},
		},
	}

	cases := []struct {
		name string
		s    string
	}{
		{
			name: "ngc.toml",
			s: `units = "inch"
parameter_file = "ngc.var"
block_delete = true
on_error = "skip"

[[tool]]
number = 1
length = 2.5
diameter = 0.25

[[tool]]
number = 7
diameter = 0.5
`,
		},
		{
			name: "ngc.yaml",
			s: `units: inch
parameter_file: ngc.var
block_delete: true
on_error: skip
tools:
  - number: 1
    length: 2.5
    diameter: 0.25
  - number: 7
    diameter: 0.5
`,
		},
	}

	for _, c := range cases {
		cfg, err := LoadConfig(writeFile(t, c.name, c.s))
		if err != nil {
			t.Errorf("LoadConfig(%s) failed with %s", c.name, err)
			continue
		}
		if diff := cmp.Diff(want, cfg, cmpopts.IgnoreFields(Config{}, "Store", "Logger")); diff != "" {
			t.Errorf("LoadConfig(%s) (-want +got):\n%s", c.name, diff)
		}
	}

	cfg, err := LoadConfig(writeFile(t, "empty.yml", ""))
	if err != nil {
		t.Errorf("LoadConfig(empty.yml) failed with %s", err)
	} else if units, _ := cfg.units(); units != Metric {
		t.Errorf("LoadConfig(empty.yml) got units %s", units)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		s    string
	}{
		{name: "ngc.toml", s: `units = "cubits"`},
		{name: "ngc.toml", s: `on_error = "retry"`},
		{name: "ngc.toml", s: "[[tool]]\nnumber = 2\n[[tool]]\nnumber = 2\n"},
		{name: "ngc.toml", s: "[[tool]]\nnumber = -1\n"},
		{name: "ngc.toml", s: "[[tool]]\nnumber = 1\ndiameter = -0.5\n"},
		{name: "ngc.toml", s: "units = \n"},
		{name: "ngc.yaml", s: "tools: [number: 1\n"},
		{name: "ngc.yaml", s: "units: furlongs\n"},
		{name: "ngc.json", s: `{"units": "mm"}`},
	}

	for _, c := range cases {
		if _, err := LoadConfig(writeFile(t, c.name, c.s)); err == nil {
			t.Errorf("LoadConfig(%s, %q) did not fail", c.name, c.s)
		}
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("LoadConfig(missing.toml) did not fail")
	}
}
