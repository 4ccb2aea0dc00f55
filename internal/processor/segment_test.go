package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"
)

// blankPage returns a white page of the given size.
func blankPage(w, h int) *image.Gray {
	page := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(page, page.Bounds(), &image.Uniform{C: color.Gray{Y: 255}}, image.Point{}, draw.Src)
	return page
}

// inkBar paints a black rectangle standing in for a line of text.
func inkBar(page *image.Gray, r image.Rectangle) {
	draw.Draw(page, r, &image.Uniform{C: color.Gray{Y: 0}}, image.Point{}, draw.Src)
}

func TestSegmentBlankPage(t *testing.T) {
	page := blankPage(1600, 1000)

	crops := Segment(page)

	if len(crops) != 1 {
		t.Fatalf("got %d crops, want 1", len(crops))
	}
	if crops[0].Bounds != page.Bounds() || crops[0].Image != page {
		t.Errorf("fallback crop should be the whole page, got %v", crops[0].Bounds)
	}
}

func TestSegmentLines(t *testing.T) {
	page := blankPage(1700, 1100)
	tops := []int{100, 230, 360, 490}
	for _, y := range tops {
		inkBar(page, image.Rect(120, y, 1200, y+30))
	}

	crops := Segment(page)

	if len(crops) != len(tops) {
		t.Fatalf("got %d crops, want %d", len(crops), len(tops))
	}
	for i, crop := range crops {
		want := image.Rect(110, tops[i]-4, 1209, tops[i]+30+4)
		if crop.Bounds != want {
			t.Errorf("crop %d bounds = %v, want %v", i, crop.Bounds, want)
		}
		if crop.Image.Bounds() != want {
			t.Errorf("crop %d image bounds = %v, want %v", i, crop.Image.Bounds(), want)
		}
	}
}

func TestSegmentMergesCloseBands(t *testing.T) {
	page := blankPage(1700, 1100)
	// Descender row 6px below the body of the line.
	inkBar(page, image.Rect(120, 200, 1200, 230))
	inkBar(page, image.Rect(120, 236, 1200, 246))

	crops := Segment(page)

	if len(crops) != 1 {
		t.Fatalf("got %d crops, want 1 merged line", len(crops))
	}
	if crops[0].Bounds.Min.Y != 196 || crops[0].Bounds.Max.Y != 250 {
		t.Errorf("merged bounds = %v", crops[0].Bounds)
	}
}

func TestSegmentDropsSpecks(t *testing.T) {
	page := blankPage(1700, 1100)
	inkBar(page, image.Rect(120, 300, 1200, 305))

	crops := Segment(page)

	if len(crops) != 1 || crops[0].Bounds != page.Bounds() {
		t.Fatalf("a band under 8 rows should be ignored, got %d crops", len(crops))
	}
}

func TestInkThresholdCapped(t *testing.T) {
	if got := inkThreshold(blankPage(100, 100)); got != 220 {
		t.Errorf("inkThreshold(blank) = %d, want 220", got)
	}

	dark := image.NewGray(image.Rect(0, 0, 10, 10))
	if got := inkThreshold(dark); got != 0 {
		t.Errorf("inkThreshold(black) = %d, want 0", got)
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocessUpscales(t *testing.T) {
	data := encodePNG(t, image.NewRGBA(image.Rect(0, 0, 400, 200)))

	page, err := Preprocess(data)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if got := page.Bounds(); got.Dx() != 1600 || got.Dy() != 800 {
		t.Errorf("bounds = %v, want 1600x800", got)
	}
}

func TestPreprocessKeepsLargePages(t *testing.T) {
	data := encodePNG(t, blankPage(1700, 900))

	page, err := Preprocess(data)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if got := page.Bounds(); got.Dx() != 1700 || got.Dy() != 900 {
		t.Errorf("bounds = %v, want 1700x900", got)
	}
}

func TestPreprocessContrast(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 1600, 10))
	for i := range src.Pix {
		src.Pix[i] = 100
	}
	for x := 0; x < 800; x++ {
		src.Pix[x] = 200
	}

	page, err := Preprocess(encodePNG(t, src))
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	// Mean is 105; 200 moves away from it, 100 moves below 100.
	if light := page.GrayAt(0, 0).Y; light <= 200 {
		t.Errorf("light pixel = %d, want > 200", light)
	}
	if dark := page.GrayAt(1000, 5).Y; dark >= 100 {
		t.Errorf("dark pixel = %d, want < 100", dark)
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	if _, err := Preprocess([]byte("definitely not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDetectImageType(t *testing.T) {
	tests := []struct {
		data []byte
		want string
	}{
		{[]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}, "image/png"},
		{[]byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{[]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{[]byte("BM\x00\x00"), "image/bmp"},
		{[]byte("hello"), ""},
	}
	for _, tt := range tests {
		if got := detectImageType(tt.data); got != tt.want {
			t.Errorf("detectImageType(%q) = %q, want %q", tt.data, got, tt.want)
		}
	}
}
