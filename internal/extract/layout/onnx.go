package layout

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"pdf-structural-translator/internal/types"
)

// ONNXExtractor runs a DocLayout-YOLO-style layout-detection model through
// yalue/onnxruntime_go, wiring the full session lifecycle; the rule-based
// path stays in HeuristicExtractor rather than being duplicated here.
type ONNXExtractor struct {
	modelPath     string
	libraryPath   string
	inputSize     int
	confThreshold float32
	fallback      Extractor

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// ONNXConfig configures the model session.
type ONNXConfig struct {
	ModelPath     string // path to the .onnx model file
	LibraryPath   string // path to the onnxruntime shared library, if non-default
	InputSize     int    // square input resolution, e.g. 1024
	ConfThreshold float32
}

const onnxOutputBoxes = 8400 // typical YOLO-style anchor count at 1024x1024

// NewONNXExtractor loads the ONNX environment and session. fallback is used
// when the session cannot be initialized (missing runtime, missing model) —
// reconciliation.layout_engine=onnx degrades to heuristic rather than
// failing the document, per the extractor failure semantics.
func NewONNXExtractor(cfg ONNXConfig, fallback Extractor) (Extractor, error) {
	if cfg.InputSize == 0 {
		cfg.InputSize = 1024
	}
	if cfg.ConfThreshold == 0 {
		cfg.ConfThreshold = 0.3
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fallback, fmt.Errorf("layout: onnxruntime init failed, falling back to heuristic: %w", err)
		}
	}

	inputShape := ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return fallback, fmt.Errorf("layout: allocate input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, onnxOutputBoxes, int64(len(elementClasses)+5))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return fallback, fmt.Errorf("layout: allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"images"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fallback, fmt.Errorf("layout: create session: %w", err)
	}

	return &ONNXExtractor{
		modelPath:     cfg.ModelPath,
		libraryPath:   cfg.LibraryPath,
		inputSize:     cfg.InputSize,
		confThreshold: cfg.ConfThreshold,
		fallback:      fallback,
		session:       session,
		input:         inputTensor,
		output:        outputTensor,
	}, nil
}

// Close releases the session and tensors. Safe to call once per extractor.
func (e *ONNXExtractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
}

// elementClasses is the detector's label set (minus the two
// page-furniture classes, which the reconciler filters independently).
var elementClasses = []string{
	"text", "title", "picture", "caption", "section_header", "footnote", "formula", "table", "list_item",
}

// Extract rasterizes each page, runs the detector, and folds detections back
// into hint Spans against the fragments produced by the heuristic path —
// the ONNX model locates regions; HeuristicExtractor still supplies the
// underlying text, since PDF text extraction needs no neural assist.
func (e *ONNXExtractor) Extract(ctx context.Context, pdfPath string) (*Result, error) {
	base, err := e.fallback.Extract(ctx, pdfPath)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return base, nil
	}

	for _, page := range base.Pages {
		select {
		case <-ctx.Done():
			return nil, types.NewAppError(types.ErrExtractorTimeout, "onnx layout extraction cancelled", ctx.Err())
		default:
		}

		if err := e.loadPageTensor(pdfPath, page.Index); err != nil {
			// A single page's rasterization failing is recoverable: keep the
			// heuristic hints for that page rather than aborting the document.
			continue
		}
		if err := e.session.Run(); err != nil {
			continue
		}
		detections := decodeDetections(e.output.GetData(), e.confThreshold)
		mergeDetectionHints(page.Index, detections, &base.Hints)
	}

	return base, nil
}

// loadPageTensor rasterizes page pageIndex of pdfPath into the input
// tensor's backing buffer at inputSize x inputSize, normalized to [0,1]
// and laid out CHW per the model's expected input.
func (e *ONNXExtractor) loadPageTensor(pdfPath string, pageIndex int) error {
	pixels, err := rasterizePage(pdfPath, pageIndex, e.inputSize)
	if err != nil {
		return err
	}
	copy(e.input.GetData(), pixels)
	return nil
}

type detection struct {
	class      string
	confidence float32
	x1, y1     float32
	x2, y2     float32
}

// decodeDetections parses a flat [boxes, 5+classes] tensor into detections
// above confThreshold, the usual YOLO-style box/objectness/class-logits
// layout.
func decodeDetections(raw []float32, confThreshold float32) []detection {
	stride := 5 + len(elementClasses)
	var out []detection
	for i := 0; i+stride <= len(raw); i += stride {
		row := raw[i : i+stride]
		objectness := row[4]
		if objectness < confThreshold {
			continue
		}
		bestClass, bestScore := 0, float32(0)
		for c, score := range row[5:] {
			if score > bestScore {
				bestClass, bestScore = c, score
			}
		}
		conf := objectness * bestScore
		if conf < confThreshold {
			continue
		}
		cx, cy, w, h := row[0], row[1], row[2], row[3]
		out = append(out, detection{
			class:      elementClasses[bestClass],
			confidence: conf,
			x1:         cx - w/2,
			y1:         cy - h/2,
			x2:         cx + w/2,
			y2:         cy + h/2,
		})
	}
	return out
}

// mergeDetectionHints folds figure/table/heading detections into the page's
// Hints as whole-page Spans scoped by detection class; the reconciler's
// spatial-association step resolves them against fragment
// bounding boxes.
func mergeDetectionHints(pageIndex int, detections []detection, hints *Hints) {
	for _, d := range detections {
		span := Span{PageIndex: pageIndex}
		switch d.class {
		case "table":
			hints.TableRegions = append(hints.TableRegions, span)
		case "picture":
			hints.FigurePlaceholders = append(hints.FigurePlaceholders, span)
		case "title", "section_header":
			hints.HeadingCandidates = append(hints.HeadingCandidates, span)
		case "formula":
			hints.LatexSpans = append(hints.LatexSpans, span)
		}
	}
}
