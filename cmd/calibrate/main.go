// Calibrate computes the camera focal length used by the distance estimator.
//
// Either pass the pixel width measured by hand, or let the tool capture a
// frame and measure the largest detection:
//
//	calibrate -distance 1.0 -width 0.15 -pixels 120
//	calibrate -distance 1.0 -width 0.15 -device 0 -model models/yolov8n.onnx
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/teslashibe/go-stuffbot/internal/log"
	"github.com/teslashibe/go-stuffbot/pkg/camera"
	"github.com/teslashibe/go-stuffbot/pkg/distance"
	"github.com/teslashibe/go-stuffbot/pkg/tracking/detection"
)

func main() {
	knownDistance := flag.Float64("distance", 1.0, "Distance from camera to object in meters")
	knownWidth := flag.Float64("width", distance.DefaultKnownWidth, "Real object width in meters")
	pixels := flag.Float64("pixels", 0, "Measured object width in pixels (0 = detect from camera)")
	device := flag.String("device", camera.DefaultConfig().Device, "Camera device")
	model := flag.String("model", detection.DefaultYOLOConfig().ModelPath, "YOLO ONNX model")
	frames := flag.Int("frames", 5, "Frames to average when detecting")
	debug := flag.Bool("debug", false, "Verbose logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	width := *pixels
	if width <= 0 {
		var err error
		width, err = measure(*device, *model, *frames)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("📏 Measured width: %.1f px\n", width)
	}

	focal, err := distance.CalibrateFocalLength(*knownDistance, *knownWidth, width)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("🎯 Focal length: %.1f px\n", focal)
	fmt.Printf("   export FOCAL_LENGTH=%.1f\n", focal)
}

// measure averages the width of the best detection over n frames.
func measure(device, model string, n int) (float64, error) {
	camCfg := camera.DefaultConfig()
	camCfg.Device = device
	cam, err := camera.Open(camCfg, log.L())
	if err != nil {
		return 0, fmt.Errorf("camera: %w", err)
	}
	defer cam.Close()

	yoloCfg := detection.DefaultYOLOConfig()
	yoloCfg.ModelPath = model
	detector, err := detection.NewYOLO(yoloCfg, log.L())
	if err != nil {
		return 0, fmt.Errorf("detector: %w", err)
	}
	defer detector.Close()

	var sum float64
	var seen int
	for i := 0; i < n; i++ {
		img, err := cam.Read()
		if err != nil {
			log.Warn("frame read failed", "error", err)
			continue
		}
		dets, err := detector.Detect(img)
		if err != nil {
			log.Warn("detection failed", "error", err)
			continue
		}
		best := detection.SelectBest(dets)
		if best == nil {
			continue
		}
		log.Debug("detected", "class", best.Class, "confidence", best.Confidence, "width", best.Box.Width())
		sum += best.Box.Width()
		seen++
	}
	if seen == 0 {
		return 0, fmt.Errorf("no object detected in %d frames", n)
	}
	return sum / float64(seen), nil
}
