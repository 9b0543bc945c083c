package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
)

// FFmpegWebcamStreamer streams live gray frames from a camera. Frames that
// nobody is waiting for are dropped, so a reader always gets a fresh one.
type FFmpegWebcamStreamer struct {
	stopOnce sync.Once

	deviceName string
	width      int
	height     int
	targetFPS  uint

	cmd       *exec.Cmd
	frameChan chan image.Image
	errChan   chan error

	stopChan chan struct{}
}

func NewFFmpegWebcam(deviceName string, targetFps uint, width int, height int) *FFmpegWebcamStreamer {
	if targetFps == 0 {
		targetFps = standardFPS
	}
	return &FFmpegWebcamStreamer{
		deviceName: deviceName,
		width:      width,
		height:     height,
		targetFPS:  targetFps,

		frameChan: make(chan image.Image),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func webcamArgs(goos, device string, fps uint, width, height int) []string {
	input := []string{"-f", "v4l2", "-i", device}
	if goos == "windows" {
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", device)}
	}
	return append(input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height),
		"-f", "image2pipe",
		"-pix_fmt", ffmpegGrayArgs,
		"-vcodec", "rawvideo",
		"-",
	)
}

func (ws *FFmpegWebcamStreamer) Start() error {
	ws.cmd = exec.Command("ffmpeg", webcamArgs(runtime.GOOS, ws.deviceName, ws.targetFPS, ws.width, ws.height)...)

	var stderr bytes.Buffer
	ws.cmd.Stderr = &stderr

	stdout, err := ws.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := ws.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w. Details: %s", err, stderr.String())
	}

	go ws.readLoop(stdout)

	return nil
}

func (ws *FFmpegWebcamStreamer) readLoop(stdout io.ReadCloser) {
	defer close(ws.frameChan)
	defer stdout.Close()
	defer ws.stopCmdOut()

	frameSize := ws.width * ws.height * bytePerPixel

	for {
		select {
		case <-ws.stopChan:
			return

		default:
			buffer := make([]byte, frameSize)
			_, err := io.ReadFull(stdout, buffer)
			if err != nil {
				select {
				case <-ws.stopChan:
					return
				default:
					ws.errChan <- fmt.Errorf("read error: %v", err)
					return
				}
			}

			img := &image.Gray{
				Pix:    buffer,
				Stride: ws.width * bytePerPixel,
				Rect:   image.Rect(0, 0, ws.width, ws.height),
			}

			select {
			case ws.frameChan <- img:
			default:
			}
		}
	}
}

func (ws *FFmpegWebcamStreamer) stopCmdOut() {
	if ws.cmd != nil && ws.cmd.Process != nil {
		ws.cmd.Process.Kill()
		ws.cmd.Wait()
	}
}

func (ws *FFmpegWebcamStreamer) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.stopChan)
		ws.stopCmdOut()
	})
}

func (ws *FFmpegWebcamStreamer) FrameChan() <-chan image.Image { return ws.frameChan }
func (ws *FFmpegWebcamStreamer) ErrorChan() <-chan error       { return ws.errChan }

var dshowDeviceRe = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

func ListCameras() ([]string, error) {
	if runtime.GOOS != "windows" {
		return []string{"/dev/video0", "/dev/video1"}, nil
	}

	cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Run()

	cameras := parseDShowDevices(stderr.String())
	if len(cameras) == 0 {
		return []string{"No cameras found"}, nil
	}
	return cameras, nil
}

func parseDShowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)
	for _, m := range dshowDeviceRe.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}
	return cameras
}
