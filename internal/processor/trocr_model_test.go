package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeHandle struct {
	batches [][]image.Image
	err     error
}

func (h *fakeHandle) Decode(_ context.Context, batch []image.Image, _ int) ([]string, error) {
	if h.err != nil {
		return nil, h.err
	}
	h.batches = append(h.batches, batch)
	out := make([]string, len(batch))
	for i, img := range batch {
		out[i] = fmt.Sprintf("Tab Line%d 10 mg OD", img.Bounds().Min.Y)
	}
	return out, nil
}

type fakeRuntime struct {
	handle *fakeHandle
	loads  int
	err    error
}

func (r *fakeRuntime) Load(_ context.Context, _ string) (ModelHandle, error) {
	r.loads++
	if r.err != nil {
		return nil, r.err
	}
	return r.handle, nil
}

func writeTrainingConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "training_config.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write training config: %v", err)
	}
}

func lineCrops(n int) []LineCrop {
	page := blankPage(200, 40*n)
	crops := make([]LineCrop, n)
	for i := range crops {
		r := image.Rect(0, i*40, 200, i*40+30)
		crops[i] = LineCrop{Bounds: r, Image: page.SubImage(r).(*image.Gray)}
	}
	return crops
}

func TestTrOCRBatches(t *testing.T) {
	dir := t.TempDir()
	writeTrainingConfig(t, dir, `{"epochs": 12, "base_model": "trocr-small-handwritten"}`)
	runtime := &fakeRuntime{handle: &fakeHandle{}}
	rec := NewTrOCRRecognizer(TrOCRConfig{ModelDir: dir, MinEpochs: 6, BatchSize: 2}, runtime, nil)

	result, err := rec.Recognize(context.Background(), nil, lineCrops(5))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got := len(runtime.handle.batches); got != 3 {
		t.Errorf("decode calls = %d, want 3", got)
	}
	if len(result.Lines) != 5 || result.Lines[0] != "Tab Line0 10 mg OD" || result.Lines[4] != "Tab Line160 10 mg OD" {
		t.Errorf("Lines = %v", result.Lines)
	}
	if result.Confidence != trainedConfidence || result.Engine != rec.Name() {
		t.Errorf("confidence = %v, engine = %q", result.Confidence, result.Engine)
	}
}

func TestTrOCRLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	runtime := &fakeRuntime{handle: &fakeHandle{}}
	rec := NewTrOCRRecognizer(TrOCRConfig{ModelDir: dir, MinEpochs: 6}, runtime, nil)

	for i := 0; i < 3; i++ {
		if _, err := rec.Recognize(context.Background(), nil, lineCrops(1)); err != nil {
			t.Fatalf("Recognize #%d: %v", i, err)
		}
	}
	if runtime.loads != 1 {
		t.Errorf("runtime loads = %d, want 1", runtime.loads)
	}
}

func TestTrOCRLoadErrors(t *testing.T) {
	undertrained := t.TempDir()
	writeTrainingConfig(t, undertrained, `{"epochs": "2"}`)

	tests := []struct {
		name    string
		dir     string
		runtime ModelRuntime
		want    string
	}{
		{"missing dir", filepath.Join(t.TempDir(), "nope"), &fakeRuntime{handle: &fakeHandle{}}, "TrOCR model directory not found"},
		{"undertrained", undertrained, &fakeRuntime{handle: &fakeHandle{}}, "undertrained for production use (epochs=2, required>=6)"},
		{"no runtime", t.TempDir(), nil, "no model runtime configured"},
		{"runtime failure", t.TempDir(), &fakeRuntime{err: errors.New("connection refused")}, "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewTrOCRRecognizer(TrOCRConfig{ModelDir: tt.dir, MinEpochs: 6}, tt.runtime, nil)
			_, err := rec.Recognize(context.Background(), nil, lineCrops(1))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestTrOCRDecodeError(t *testing.T) {
	runtime := &fakeRuntime{handle: &fakeHandle{err: errors.New("boom")}}
	rec := NewTrOCRRecognizer(TrOCRConfig{ModelDir: t.TempDir()}, runtime, nil)

	if _, err := rec.Recognize(context.Background(), nil, lineCrops(2)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReadTrainedEpochs(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   int
		wantOK bool
	}{
		{"number", `{"epochs": 8}`, 8, true},
		{"string", `{"epochs": "10"}`, 10, true},
		{"missing", `{"lr": 0.0001}`, 0, false},
		{"garbage string", `{"epochs": "many"}`, 0, false},
		{"invalid json", `{`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTrainingConfig(t, dir, tt.body)
			got, ok := readTrainedEpochs(dir)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("readTrainedEpochs = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if _, ok := readTrainedEpochs(t.TempDir()); ok {
		t.Error("missing training_config.json should report not ok")
	}
}
