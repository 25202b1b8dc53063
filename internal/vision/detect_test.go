package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prediction writes one anchor into a [84, anchors] matrix.
func prediction(out []float32, anchors, i int, cx, cy, w, h float32, class int, score float32) {
	out[0*anchors+i] = cx
	out[1*anchors+i] = cy
	out[2*anchors+i] = w
	out[3*anchors+i] = h
	out[(4+class)*anchors+i] = score
}

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, anchorCount(640))
	assert.Equal(t, 2100, anchorCount(320))
}

func TestDecodeYOLO(t *testing.T) {
	const anchors = 4
	out := make([]float32, (4+len(cocoClasses))*anchors)
	prediction(out, anchors, 0, 100, 100, 40, 80, 0, 0.9)  // person
	prediction(out, anchors, 1, 300, 200, 50, 50, 2, 0.7)  // car
	prediction(out, anchors, 2, 500, 500, 20, 20, 0, 0.2)  // below threshold
	// anchor 3 has all-zero scores

	dets := decodeYOLO(out, anchors, 0.5, 2, 0.5)
	require.Len(t, dets, 2)

	assert.Equal(t, "person", dets[0].Class)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	assert.Equal(t, [4]float32{160, 30, 240, 70}, dets[0].BBox)
	assert.Equal(t, "car", dets[1].Class)
}

func TestNMSPerClass(t *testing.T) {
	dets := []Detection{
		{Class: "person", ClassID: 0, Confidence: 0.8, BBox: [4]float32{0, 0, 100, 100}},
		{Class: "person", ClassID: 0, Confidence: 0.9, BBox: [4]float32{5, 5, 105, 105}},
		{Class: "person", ClassID: 0, Confidence: 0.7, BBox: [4]float32{300, 300, 400, 400}},
		{Class: "dog", ClassID: 16, Confidence: 0.6, BBox: [4]float32{0, 0, 100, 100}},
	}

	kept := nmsPerClass(dets, 0.45)
	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
	assert.Equal(t, 2, CountClass(kept, PersonClass))
	assert.Equal(t, 1, CountClass(kept, "dog"))
}

func TestIoU(t *testing.T) {
	assert.InDelta(t, 1.0, iou([4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}), 1e-6)
	assert.InDelta(t, 0.0, iou([4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}), 1e-6)
	assert.InDelta(t, 25.0/175.0, iou([4]float32{0, 0, 10, 10}, [4]float32{5, 5, 15, 15}), 1e-6)
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "person", className(0))
	assert.Equal(t, "toothbrush", className(79))
	assert.Equal(t, "class_80", className(80))
}

type fakeDetector struct {
	size   int
	gotLen int
	gotW   int
	gotH   int
	dets   []Detection
}

func (f *fakeDetector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	f.gotLen, f.gotW, f.gotH = len(imgData), origW, origH
	return f.dets, nil
}
func (f *fakeDetector) InputSize() int { return f.size }
func (f *fakeDetector) Close()         {}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestPipeline_CountPeople(t *testing.T) {
	fd := &fakeDetector{size: 32, dets: []Detection{
		{Class: "person"}, {Class: "person"}, {Class: "bicycle"},
	}}
	p := &Pipeline{detector: fd}

	n, err := p.CountPeople(context.Background(), testJPEG(t, 64, 48))
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 3*32*32, fd.gotLen)
	assert.Equal(t, 64, fd.gotW)
	assert.Equal(t, 48, fd.gotH)
}

func TestPipeline_RejectsCorruptFrame(t *testing.T) {
	p := &Pipeline{detector: &fakeDetector{size: 32}}
	_, err := p.CountPeople(context.Background(), []byte("not a jpeg"))
	assert.Error(t, err)
}

func TestImageToFloat32CHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 0, 51, 255
	}

	data := imageToFloat32CHW(img, 4, 4)
	require.Len(t, data, 48)
	assert.InDelta(t, 1.0, data[0], 0.01)
	assert.InDelta(t, 0.0, data[16], 0.01)
	assert.InDelta(t, 0.2, data[32], 0.01)
}
