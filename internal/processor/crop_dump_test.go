package processor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
)

func TestCropDumperDisabled(t *testing.T) {
	d := NewCropDumper("")
	if d != nil {
		t.Fatal("empty dir should disable dumping")
	}
	dir, err := d.Dump(lineCrops(2))
	if dir != "" || err != nil {
		t.Errorf("Dump on nil dumper = (%q, %v)", dir, err)
	}
}

func TestCropDumperWritesWebP(t *testing.T) {
	root := t.TempDir()
	d := NewCropDumper(root)

	dir, err := d.Dump(lineCrops(3))
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if filepath.Dir(dir) != root {
		t.Errorf("dump dir %q is not under %q", dir, root)
	}

	for _, name := range []string{"line_000_y0.webp", "line_001_y40.webp", "line_002_y80.webp"} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		cfg, err := webp.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if cfg.Width != 200 || cfg.Height != 30 {
			t.Errorf("%s is %dx%d, want 200x30", name, cfg.Width, cfg.Height)
		}
	}

	second, err := d.Dump(lineCrops(1))
	if err != nil {
		t.Fatalf("second Dump: %v", err)
	}
	if second == dir {
		t.Error("each dump should get its own directory")
	}
}
