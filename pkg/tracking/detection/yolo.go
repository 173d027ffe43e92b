package detection

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
)

// YOLODetector runs a YOLOv8 ONNX model through the OpenCV DNN module.
// Forward passes are serialized.
type YOLODetector struct {
	mu        sync.Mutex
	net       gocv.Net
	config    YOLOConfig
	inputSize image.Point
	logger    *slog.Logger
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence"`
	NMSThresh        float32 `yaml:"nms"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultYOLOConfig returns production defaults for YOLOv8n.
// The raw threshold is kept low; the tracker applies its own cut.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// NewYOLO creates a new YOLO object detector
func NewYOLO(cfg YOLOConfig, logger *slog.Logger) (*YOLODetector, error) {
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid yolo input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("yolo model: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    logger.With("component", "yolo"),
	}, nil
}

// Detect finds objects in img.
func (d *YOLODetector) Detect(img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	blob := gocv.BlobFromImage(mat, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	dets := d.parse(output, bounds)
	d.logger.Debug("yolo pass", "detections", len(dets))
	return dets, nil
}

// candidate is one pre-NMS box in image coordinates.
type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// decodeYOLOv8 reads a [1, 4+classes, anchors] tensor laid out channel-major
// and keeps anchors whose best class score reaches thresh.
func decodeYOLOv8(data []float32, channels, anchors int, scaleX, scaleY, thresh float32) []candidate {
	if channels <= 4 || len(data) < channels*anchors {
		return nil
	}
	at := func(ch, i int) float32 { return data[ch*anchors+i] }

	var out []candidate
	for i := 0; i < anchors; i++ {
		best, class := float32(0), 0
		for ch := 4; ch < channels; ch++ {
			if v := at(ch, i); v > best {
				best, class = v, ch-4
			}
		}
		if best < thresh {
			continue
		}

		cx, cy := at(0, i), at(1, i)
		halfW, halfH := at(2, i)/2, at(3, i)/2
		out = append(out, candidate{
			box: image.Rect(
				int((cx-halfW)*scaleX), int((cy-halfH)*scaleY),
				int((cx+halfW)*scaleX), int((cy+halfH)*scaleY),
			),
			score:   best,
			classID: class,
		})
	}
	return out
}

// toDetections clips candidates to bounds and converts them.
func toDetections(cands []candidate, keep []int, bounds image.Rectangle) []Detection {
	dets := make([]Detection, 0, len(keep))
	for _, idx := range keep {
		c := cands[idx]
		box := c.box.Intersect(bounds)
		if box.Empty() {
			continue
		}
		dets = append(dets, Detection{
			Class:      ClassName(c.classID),
			ClassID:    c.classID,
			Confidence: float64(c.score),
			Box: frame.BoundingBox{
				X1: float64(box.Min.X),
				Y1: float64(box.Min.Y),
				X2: float64(box.Max.X),
				Y2: float64(box.Max.Y),
			},
		})
	}
	return dets
}

func (d *YOLODetector) parse(output gocv.Mat, bounds image.Rectangle) []Detection {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		d.logger.Debug("read yolo output", "error", err)
		return nil
	}

	scaleX := float32(bounds.Dx()) / float32(d.config.InputWidth)
	scaleY := float32(bounds.Dy()) / float32(d.config.InputHeight)
	cands := decodeYOLOv8(data, sizes[1], sizes[2], scaleX, scaleY, d.config.ConfidenceThresh)
	if len(cands) == 0 {
		return nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i], scores[i] = c.box, c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)
	return toDetections(cands, keep, bounds)
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

var _ Detector = (*YOLODetector)(nil)
