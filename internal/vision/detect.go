package vision

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one object found in a frame.
type Detection struct {
	Class      string
	ClassID    int
	Confidence float32
	BBox       [4]float32 // x1, y1, x2, y2 in original image pixels
}

// Detector runs a YOLOv8 COCO model using ONNX Runtime.
type Detector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	threshold    float32
	nmsThreshold float32
	inputSize    int
	anchors      int
}

// anchorCount is the number of predictions YOLOv8 emits for a square input:
// one per cell at strides 8, 16 and 32.
func anchorCount(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := inputSize / stride
		n += side * side
	}
	return n
}

// NewDetector loads the model. opts may be nil for ORT defaults.
func NewDetector(modelPath string, inputSize int, threshold, nmsThreshold float32, opts *ort.SessionOptions) (*Detector, error) {
	anchors := anchorCount(inputSize)

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputSize), int64(inputSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// [batch, 4 box coords + 80 class scores, anchors]
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+len(cocoClasses)), int64(anchors)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		threshold:    threshold,
		nmsThreshold: nmsThreshold,
		inputSize:    inputSize,
		anchors:      anchors,
	}, nil
}

// Detect runs the model on a preprocessed CHW image of InputSize x InputSize.
// origW/origH are the source frame dimensions for coordinate scaling.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	copy(d.inputTensor.GetData(), imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scaleW := float32(origW) / float32(d.inputSize)
	scaleH := float32(origH) / float32(d.inputSize)
	dets := decodeYOLO(d.outputTensor.GetData(), d.anchors, d.threshold, scaleW, scaleH)
	dets = clampDetections(dets, float32(origW), float32(origH))
	return nmsPerClass(dets, d.nmsThreshold), nil
}

func (d *Detector) InputSize() int {
	return d.inputSize
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
	}
}

// decodeYOLO reads a [84, anchors] row-major prediction matrix. Rows 0..3 are
// cx, cy, w, h in input pixels; the remaining rows are per-class scores.
func decodeYOLO(out []float32, anchors int, threshold, scaleW, scaleH float32) []Detection {
	numClasses := len(out)/anchors - 4
	var detections []Detection

	for i := 0; i < anchors; i++ {
		bestClass := -1
		var bestScore float32
		for c := 0; c < numClasses; c++ {
			if s := out[(4+c)*anchors+i]; s > bestScore {
				bestScore = s
				bestClass = c
			}
		}
		if bestClass < 0 || bestScore < threshold {
			continue
		}

		cx := out[0*anchors+i]
		cy := out[1*anchors+i]
		w := out[2*anchors+i]
		h := out[3*anchors+i]

		detections = append(detections, Detection{
			Class:      className(bestClass),
			ClassID:    bestClass,
			Confidence: bestScore,
			BBox: [4]float32{
				(cx - w/2) * scaleW,
				(cy - h/2) * scaleH,
				(cx + w/2) * scaleW,
				(cy + h/2) * scaleH,
			},
		})
	}
	return detections
}

func clampDetections(dets []Detection, maxW, maxH float32) []Detection {
	for i := range dets {
		b := &dets[i].BBox
		b[0] = clampF(b[0], 0, maxW)
		b[1] = clampF(b[1], 0, maxH)
		b[2] = clampF(b[2], 0, maxW)
		b[3] = clampF(b[3], 0, maxH)
	}
	return dets
}

// CountClass returns how many detections carry the given class label.
func CountClass(dets []Detection, class string) int {
	n := 0
	for _, d := range dets {
		if d.Class == class {
			n++
		}
	}
	return n
}

// nmsPerClass suppresses overlapping boxes; boxes of different classes never
// suppress each other.
func nmsPerClass(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] || detections[i].ClassID != detections[j].ClassID {
				continue
			}
			if iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Detection
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
