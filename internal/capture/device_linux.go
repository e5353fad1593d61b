//go:build linux

package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/ffmpeg"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/process"
	"github.com/smazurov/framelink/pkg/linuxav/hotplug"
	"github.com/smazurov/framelink/pkg/linuxav/v4l2"
)

// Input formats in order of preference, with the name ffmpeg's v4l2 demuxer uses.
var inputFormats = []struct {
	fourcc uint32
	name   string
}{
	{v4l2.PixFmtYUYV, "yuyv422"},
	{v4l2.PixFmtNV12, "nv12"},
	{v4l2.PixFmtYU12, "yuv420p"},
	{v4l2.PixFmtMJPEG, "mjpeg"},
}

// linearZoomSteps is the zoom range assumed for ZOOM_ABSOLUTE controls that
// have no optical unit (minimum 0).
const linearZoomSteps = 10

// DeviceProvider opens V4L2 cameras. Frames are decoded to yuv420p by an
// ffmpeg subprocess; parameters are written straight to the device controls.
type DeviceProvider struct {
	Options []ffmpeg.OptionType
	logger  *slog.Logger
}

// NewDeviceProvider creates a provider passing opts to every ffmpeg capture.
func NewDeviceProvider(opts []ffmpeg.OptionType) *DeviceProvider {
	return &DeviceProvider{Options: opts, logger: logging.GetLogger("capture")}
}

// Devices lists capture devices with their sizes and control ranges.
func (p *DeviceProvider) Devices(context.Context) ([]Device, error) {
	infos, err := v4l2.FindDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		_, sizes, err := probeFormat(info.DevicePath)
		if err != nil {
			p.logger.Debug("Skipping device", "path", info.DevicePath, "error", err)
			continue
		}
		var caps control.Capabilities
		if ctrls, err := v4l2.OpenControls(info.DevicePath); err == nil {
			caps = probeControls(ctrls).capabilities()
			_ = ctrls.Close()
		}
		devices = append(devices, Device{
			ID:           info.DeviceID,
			Name:         info.DeviceName,
			Sizes:        sizes,
			Capabilities: caps,
		})
	}
	return devices, nil
}

// Open resolves cfg.Camera to a device node and starts capture at the
// supported size closest to cfg.Size.
func (p *DeviceProvider) Open(ctx context.Context, cfg Config) (Source, error) {
	info, err := v4l2.ResolveDevice(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	path := info.DevicePath

	inputFormat, sizes, err := probeFormat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	size, err := SelectResolution(sizes, cfg.Size)
	if err != nil {
		return nil, err
	}

	ctrls, err := v4l2.OpenControls(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	dc := probeControls(ctrls)

	args, err := ffmpeg.BuildCaptureArgs(ffmpeg.CaptureParams{
		DevicePath:  path,
		InputFormat: inputFormat,
		Width:       size.Width,
		Height:      size.Height,
		FPS:         cfg.FPS,
		Options:     p.Options,
	})
	if err != nil {
		_ = ctrls.Close()
		return nil, err
	}

	logger := p.logger.With("device", path, "size", size.String())
	proc, err := process.Start(args, logger,
		process.WithOutputLogger(logging.GetLogger("ffmpeg").With("device", path), ffmpeg.ParseLogLevel))
	if err != nil {
		_ = ctrls.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &deviceSource{
		path:     path,
		size:     size,
		caps:     dc.capabilities(),
		controls: dc,
		proc:     proc,
		slot:     NewSlot(),
		cancel:   cancel,
		logger:   logger,
	}

	if monitor, err := hotplug.NewMonitor(); err != nil {
		logger.Warn("Hotplug monitor unavailable, device removal detected by read errors only", "error", err)
	} else {
		monitor.Filter(hotplug.SubsystemVideo4Linux)
		s.monitor = monitor
		s.wg.Add(1)
		go s.watchRemoval(runCtx)
	}
	s.wg.Add(1)
	go s.readFrames(runCtx)

	if err := s.ApplyParameters(control.DefaultParameters()); err != nil {
		logger.Warn("Failed to apply initial parameters", "error", err)
	}
	logger.Info("Capture started", "pid", proc.Pid(), "input_format", inputFormat)
	return s, nil
}

// probeFormat picks the preferred input format of a device and lists its sizes.
func probeFormat(path string) (string, []Size, error) {
	formats, err := v4l2.GetFormats(path)
	if err != nil {
		return "", nil, err
	}
	offered := make(map[uint32]bool, len(formats))
	for _, f := range formats {
		offered[f.PixelFormat] = true
	}

	for _, in := range inputFormats {
		if !offered[in.fourcc] {
			continue
		}
		resolutions, err := v4l2.GetResolutions(path, in.fourcc)
		if err != nil {
			return "", nil, err
		}
		sizes := make([]Size, 0, len(resolutions))
		for _, r := range resolutions {
			sizes = append(sizes, Size{Width: int(r.Width), Height: int(r.Height)})
		}
		if len(sizes) > 0 {
			return in.name, sizes, nil
		}
	}
	return "", nil, ErrResolutionUnsupported
}

// deviceControls holds the controls a device exposes for each parameter.
// Nil entries are absent or read-only.
type deviceControls struct {
	ctrls     *v4l2.Controls
	zoom      *v4l2.ControlInfo
	exposure  *v4l2.ControlInfo
	focus     *v4l2.ControlInfo
	focusAuto *v4l2.ControlInfo
	flash     *v4l2.ControlInfo
}

func probeControls(ctrls *v4l2.Controls) *deviceControls {
	query := func(id v4l2.ControlID) *v4l2.ControlInfo {
		info, err := ctrls.Query(id)
		if err != nil || !info.Writable() {
			return nil
		}
		return &info
	}
	return &deviceControls{
		ctrls:     ctrls,
		zoom:      query(v4l2.CIDZoomAbsolute),
		exposure:  query(v4l2.CIDAutoExposureBias),
		focus:     query(v4l2.CIDFocusAbsolute),
		focusAuto: query(v4l2.CIDFocusAuto),
		flash:     query(v4l2.CIDFlashLEDMode),
	}
}

func (d *deviceControls) capabilities() control.Capabilities {
	caps := control.Capabilities{MaxZoom: 1}
	if d.zoom != nil && d.zoom.Maximum > d.zoom.Minimum {
		if d.zoom.Minimum > 0 {
			caps.MaxZoom = float64(d.zoom.Maximum) / float64(d.zoom.Minimum)
		} else {
			caps.MaxZoom = linearZoomSteps
		}
	}
	if d.exposure != nil {
		caps.ExposureMin = int(d.exposure.Minimum)
		caps.ExposureMax = int(d.exposure.Maximum)
	}
	if d.focus != nil && d.focus.Maximum > d.focus.Minimum {
		caps.MinFocusDistance = float64(d.focus.Maximum - d.focus.Minimum)
	}
	caps.FlashAvailable = d.flash != nil
	return caps
}

// zoomValue maps a zoom ratio onto ZOOM_ABSOLUTE. Optical units whose
// minimum is the 1x focal length scale proportionally; others linearly.
func (d *deviceControls) zoomValue(zoom float64, caps control.Capabilities) int32 {
	if d.zoom.Minimum > 0 {
		v := math.Round(zoom * float64(d.zoom.Minimum))
		return int32(math.Min(v, float64(d.zoom.Maximum)))
	}
	if caps.MaxZoom <= 1 {
		return d.zoom.Minimum
	}
	return d.zoom.Scale((zoom - 1) / (caps.MaxZoom - 1))
}

// apply writes the fields of p that differ from prev. A nil prev writes all.
func (d *deviceControls) apply(p control.Parameters, prev *control.Parameters, caps control.Capabilities) error {
	var errs []error
	set := func(id v4l2.ControlID, v int32) {
		if err := d.ctrls.Set(id, v); err != nil {
			errs = append(errs, err)
		}
	}

	if d.zoom != nil && (prev == nil || prev.Zoom != p.Zoom) {
		set(v4l2.CIDZoomAbsolute, d.zoomValue(p.Zoom, caps))
	}
	if d.exposure != nil && (prev == nil || prev.Exposure != p.Exposure) {
		set(v4l2.CIDAutoExposureBias, int32(p.Exposure))
	}
	if d.focus != nil && (prev == nil || prev.Focus != p.Focus) {
		if d.focusAuto != nil && prev == nil {
			set(v4l2.CIDFocusAuto, 0)
		}
		set(v4l2.CIDFocusAbsolute, d.focus.Scale(p.Focus))
	}
	if d.flash != nil && (prev == nil || prev.Flash != p.Flash) {
		mode := int32(v4l2.FlashLEDModeNone)
		if p.Flash {
			mode = v4l2.FlashLEDModeTorch
		}
		set(v4l2.CIDFlashLEDMode, mode)
	}
	return errors.Join(errs...)
}

type deviceSource struct {
	path     string
	size     Size
	caps     control.Capabilities
	controls *deviceControls
	proc     *process.Process
	monitor  *hotplug.Monitor
	slot     *Slot
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger

	paramsMu sync.Mutex
	applied  *control.Parameters

	closeOnce sync.Once
}

// readFrames slices ffmpeg's yuv420p stdout into frames.
func (s *deviceSource) readFrames(ctx context.Context) {
	defer s.wg.Done()

	w, h := s.size.Width, s.size.Height
	n := YUV420Size(w, h)
	r := bufio.NewReaderSize(s.proc.Stdout(), n)

	var seq uint64
	for {
		f := s.slot.Acquire()
		if !f.matches(w, h, false) {
			f = NewYUV420Frame(w, h, false)
		}
		// The planes of a planar frame are consecutive views of one
		// buffer, so the whole image is read in one call.
		if _, err := io.ReadFull(r, f.Planes[0].Data[:n]); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Capture stream ended", "error", err)
			s.slot.Fail(fmt.Errorf("%w: %s: %v", ErrDeviceLost, s.path, err))
			return
		}
		seq++
		f.Seq, f.Timestamp = seq, time.Now()
		if !s.slot.Publish(f) {
			return
		}
	}
}

func (s *deviceSource) watchRemoval(ctx context.Context) {
	defer s.wg.Done()

	err := s.monitor.WaitRemoval(ctx, s.path)
	if err != nil || ctx.Err() != nil {
		return
	}
	s.logger.Warn("Capture device removed")
	s.slot.Fail(fmt.Errorf("%w: %s removed", ErrDeviceLost, s.path))
	s.proc.Stop()
}

func (s *deviceSource) NextFrame(ctx context.Context) (*Frame, error) {
	return s.slot.Take(ctx)
}

func (s *deviceSource) ApplyParameters(p control.Parameters) error {
	p = p.Clamp(s.caps)

	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	err := s.controls.apply(p, s.applied, s.caps)
	s.applied = &p
	if err != nil {
		return fmt.Errorf("apply parameters to %s: %w", s.path, err)
	}
	return nil
}

func (s *deviceSource) Capabilities() control.Capabilities { return s.caps }
func (s *deviceSource) Size() Size                         { return s.size }
func (s *deviceSource) Drops() uint64                      { return s.slot.Drops() }

func (s *deviceSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.slot.Close()
		code := s.proc.Stop()
		s.wg.Wait()
		if s.monitor != nil {
			_ = s.monitor.Close()
		}
		_ = s.controls.ctrls.Close()
		s.logger.Info("Capture stopped", "exit_code", code)
	})
	return nil
}
