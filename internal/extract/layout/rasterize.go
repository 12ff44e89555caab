package layout

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
)

// rasterizePage renders one page of pdfPath to a size x size RGB buffer in
// CHW, [0,1]-normalized layout, the input format ONNXExtractor feeds to the
// detector. Shells out to poppler's pdftoppm; a pure-Go renderer is not
// worth maintaining for this optional path.
func rasterizePage(pdfPath string, pageIndex, size int) ([]float32, error) {
	if !popplerAvailable() {
		return nil, fmt.Errorf("layout: pdftoppm not found, install poppler-utils for onnx layout detection")
	}

	tmpDir, err := os.MkdirTemp("", "layout_raster_*")
	if err != nil {
		return nil, fmt.Errorf("layout: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pageNum := pageIndex + 1
	outputPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.Command("pdftoppm",
		"-f", fmt.Sprintf("%d", pageNum), "-l", fmt.Sprintf("%d", pageNum),
		"-png", "-scale-to", fmt.Sprintf("%d", size), "-singlefile",
		pdfPath, outputPrefix)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("layout: pdftoppm failed: %w", err)
	}

	f, err := os.Open(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("layout: read rasterized page: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("layout: decode rasterized page: %w", err)
	}

	return toCHWFloat32(img, size), nil
}

func popplerAvailable() bool {
	return exec.Command("pdftoppm", "-v").Run() == nil
}

// toCHWFloat32 converts img to a size x size CHW [0,1] tensor, center-padding
// if poppler's -scale-to produced a slightly off-square image.
func toCHWFloat32(img image.Image, size int) []float32 {
	out := make([]float32, 3*size*size)
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	for y := 0; y < size && y < h; y++ {
		for x := 0; x < size && x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*size + x
			out[idx] = float32(r) / 65535.0
			out[size*size+idx] = float32(g) / 65535.0
			out[2*size*size+idx] = float32(b) / 65535.0
		}
	}
	return out
}
