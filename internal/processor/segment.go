package processor

import (
	"image"
	"math"
)

// Projection-profile parameters for line segmentation.
const (
	maxInkThreshold  = 220
	activeRowDensity = 0.01
	activeColDensity = 0.002
	minBandHeight    = 8
	maxBandGap       = 8
	columnPadding    = 10
	rowPadding       = 4
)

type band struct{ start, end int }

// Segment splits a preprocessed page into line crops using horizontal and
// vertical projection profiles. A page with no detectable text rows comes
// back as a single crop covering the whole page.
func Segment(page *image.Gray) []LineCrop {
	b := page.Bounds()
	w, h := b.Dx(), b.Dy()
	whole := []LineCrop{{Bounds: b, Image: page}}
	if w == 0 || h == 0 {
		return whole
	}

	threshold := inkThreshold(page)
	rowInk := make([]int, h)
	colInk := make([]int, w)
	for y := 0; y < h; y++ {
		row := page.Pix[y*page.Stride : y*page.Stride+w]
		for x, v := range row {
			if int(v) < threshold {
				rowInk[y]++
				colInk[x]++
			}
		}
	}

	bands := mergeBands(rowBands(rowInk, w))
	if len(bands) == 0 {
		return whole
	}

	x0, x1 := 0, w
	first, last := -1, -1
	for x, n := range colInk {
		if float64(n)/float64(h) > activeColDensity {
			if first < 0 {
				first = x
			}
			last = x
		}
	}
	if first >= 0 {
		x0 = max(0, first-columnPadding)
		x1 = min(w, last+columnPadding)
	}

	crops := make([]LineCrop, 0, len(bands))
	for _, bd := range bands {
		y0 := max(0, bd.start-rowPadding)
		y1 := min(h, bd.end+rowPadding)
		r := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1)
		crops = append(crops, LineCrop{Bounds: r, Image: page.SubImage(r).(*image.Gray)})
	}
	return crops
}

// inkThreshold is min(220, mean + 0.5*stddev) of the page intensities.
func inkThreshold(page *image.Gray) int {
	b := page.Bounds()
	w, h := b.Dx(), b.Dy()
	n := float64(w * h)

	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for _, v := range page.Pix[y*page.Stride : y*page.Stride+w] {
			f := float64(v)
			sum += f
			sumSq += f * f
		}
	}
	mean := sum / n
	variance := math.Max(0, sumSq/n-mean*mean)
	return min(maxInkThreshold, int(mean+0.5*math.Sqrt(variance)))
}

// rowBands groups contiguous active rows, dropping bands shorter than minBandHeight.
func rowBands(rowInk []int, width int) []band {
	var bands []band
	start := -1
	for y, n := range rowInk {
		active := float64(n)/float64(width) > activeRowDensity
		switch {
		case active && start < 0:
			start = y
		case !active && start >= 0:
			if y-start >= minBandHeight {
				bands = append(bands, band{start, y})
			}
			start = -1
		}
	}
	if start >= 0 && len(rowInk)-start >= minBandHeight {
		bands = append(bands, band{start, len(rowInk)})
	}
	return bands
}

// mergeBands joins bands separated by at most maxBandGap rows.
func mergeBands(bands []band) []band {
	var merged []band
	for _, bd := range bands {
		if n := len(merged); n > 0 && bd.start-merged[n-1].end <= maxBandGap {
			merged[n-1].end = bd.end
			continue
		}
		merged = append(merged, bd)
	}
	return merged
}
