package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"runtime"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/your-org/crowdwatch/internal/config"
	"github.com/your-org/crowdwatch/internal/observability"
)

type objectDetector interface {
	Detect(imgData []float32, origW, origH int) ([]Detection, error)
	InputSize() int
	Close()
}

// Pipeline turns a JPEG frame into a person count:
// decode → resize → detect → count.
type Pipeline struct {
	detector objectDetector
	cameraID string
}

// InitRuntime loads the ONNX Runtime shared library for this OS.
func InitRuntime() error {
	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}

// NewPipeline loads the detection model. InitRuntime must have succeeded.
func NewPipeline(cfg config.VisionConfig, cameraID string) (*Pipeline, error) {
	slog.Info("loading detection model", "path", cfg.ModelPath, "input_size", cfg.InputSize)
	det, err := NewDetector(cfg.ModelPath, cfg.InputSize,
		float32(cfg.DetectionThreshold), float32(cfg.NMSThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	slog.Info("vision pipeline ready")
	return &Pipeline{detector: det, cameraID: cameraID}, nil
}

func (p *Pipeline) Ready() bool {
	return p != nil && p.detector != nil
}

// CountPeople runs detection on one JPEG frame and returns the person count.
func (p *Pipeline) CountPeople(ctx context.Context, frame []byte) (int, error) {
	dets, err := p.DetectFrame(ctx, frame)
	if err != nil {
		return 0, err
	}
	return CountClass(dets, PersonClass), nil
}

func (p *Pipeline) DetectFrame(ctx context.Context, frame []byte) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	bounds := img.Bounds()

	start := time.Now()
	size := p.detector.InputSize()
	input := imageToFloat32CHW(img, size, size)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	dets, err := p.detector.Detect(input, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	return dets, nil
}

func (p *Pipeline) Close() {
	if p.detector != nil {
		p.detector.Close()
	}
}

// imageToFloat32CHW resizes to target and lays pixels out as CHW scaled to [0,1].
func imageToFloat32CHW(img image.Image, targetW, targetH int) []float32 {
	resized := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := targetW * targetH
	data := make([]float32, 3*plane)
	pix := resized.Pix
	for i := 0; i < plane; i++ {
		data[i] = float32(pix[i*4]) / 255
		data[plane+i] = float32(pix[i*4+1]) / 255
		data[2*plane+i] = float32(pix[i*4+2]) / 255
	}
	return data
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
