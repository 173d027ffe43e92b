package camera

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrReadFailed means the driver returned no frame.
	ErrReadFailed = errors.New("camera: read failed")

	// ErrEmptyFrame means the driver returned an empty matrix.
	ErrEmptyFrame = errors.New("camera: empty frame")
)

// Device is a gocv-backed video capture. It satisfies frame.Device.
type Device struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// Open opens the configured device. Failure here is fatal for the robot.
func Open(cfg Config, logger *slog.Logger) (*Device, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open camera %s: device not available", cfg.Device)
	}

	d := &Device{
		cfg:    cfg,
		logger: logger.With("component", "camera"),
		cap:    capture,
		mat:    gocv.NewMat(),
	}
	d.applyLocked(cfg)

	d.logger.Info("camera opened",
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.Framerate,
	)
	return d, nil
}

// Apply pushes new capture properties to the driver. Drivers silently
// ignore unsupported properties.
func (d *Device) Apply(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid camera config: %v", errs)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil {
		return errors.New("camera: closed")
	}
	d.applyLocked(cfg)
	d.cfg = cfg
	return nil
}

func (d *Device) applyLocked(cfg Config) {
	if cfg.FourCC != "" {
		d.cap.Set(gocv.VideoCaptureFOURCC, d.cap.ToCodec(cfg.FourCC))
	}
	d.cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	d.cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	d.cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.BufferSize > 0 {
		d.cap.Set(gocv.VideoCaptureBufferSize, float64(cfg.BufferSize))
	}
	if cfg.Brightness != 0 {
		d.cap.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	if cfg.Exposure != 0 {
		d.cap.Set(gocv.VideoCaptureAutoExposure, 1)
		d.cap.Set(gocv.VideoCaptureExposure, cfg.Exposure)
	}
	if cfg.Autofocus {
		d.cap.Set(gocv.VideoCaptureAutoFocus, 1)
	} else {
		d.cap.Set(gocv.VideoCaptureAutoFocus, 0)
	}
}

// Read blocks for the next frame and converts it to an image.Image.
func (d *Device) Read() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cap == nil {
		return nil, errors.New("camera: closed")
	}
	if ok := d.cap.Read(&d.mat); !ok {
		return nil, ErrReadFailed
	}
	if d.mat.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the capture handle.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cap == nil {
		return nil
	}
	err := d.cap.Close()
	d.mat.Close()
	d.cap = nil
	return err
}
