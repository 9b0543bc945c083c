package capture

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
)

// VideoSource decodes a recorded scan with ffmpeg. The recording is resampled
// to targetFPS so that each output frame holds one pattern.
type VideoSource struct {
	stopOnce sync.Once

	path      string
	targetFPS uint

	width  int
	height int

	cmd       *exec.Cmd
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func NewVideoSource(path string, targetFPS uint) (*VideoSource, error) {
	w, h, err := probeVideoDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	return &VideoSource{
		path:      path,
		targetFPS: targetFPS,
		width:     int(w),
		height:    int(h),
		frameChan: make(chan image.Image),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}, nil
}

const (
	bytePerPixel   = 1
	standardFPS    = 30
	ffmpegGrayArgs = "gray"
)

func (vs *VideoSource) Start() error {
	if vs.targetFPS == 0 {
		vs.targetFPS = standardFPS
	}

	args := []string{
		"-i", vs.path,
		"-vf", fmt.Sprintf("fps=%d", vs.targetFPS),
		"-f", "image2pipe",
		"-pix_fmt", ffmpegGrayArgs,
		"-vcodec", "rawvideo",
		"-",
	}

	vs.cmd = exec.Command("ffmpeg", args...)

	stdout, err := vs.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := vs.cmd.Start(); err != nil {
		return err
	}

	go readRawFrames(stdout, vs.width, vs.height, vs.frameChan, vs.errChan, vs.stopChan, vs.stopCmdOut)

	return nil
}

// readRawFrames slices a raw gray ffmpeg stream into frames until EOF.
func readRawFrames(stdout io.ReadCloser, width, height int, frames chan<- image.Image, errs chan<- error,
	stop <-chan struct{}, cleanup func(),
) {
	defer close(frames)
	defer stdout.Close()
	defer cleanup()

	frameSize := width * height * bytePerPixel

	for {
		buffer := make([]byte, frameSize)
		_, err := io.ReadFull(stdout, buffer)
		if err == io.EOF {
			return
		}
		if err != nil {
			select {
			case <-stop:
			default:
				errs <- fmt.Errorf("read error: %v", err)
			}
			return
		}

		img := &image.Gray{
			Pix:    buffer,
			Stride: width * bytePerPixel,
			Rect:   image.Rect(0, 0, width, height),
		}

		select {
		case frames <- img:
		case <-stop:
			return
		}
	}
}

func (vs *VideoSource) stopCmdOut() {
	if vs.cmd != nil && vs.cmd.Process != nil {
		vs.cmd.Process.Kill()
		vs.cmd.Wait()
	}
}

func (vs *VideoSource) Stop() {
	vs.stopOnce.Do(func() {
		close(vs.stopChan)
		vs.stopCmdOut()
	})
}

func (vs *VideoSource) FrameChan() <-chan image.Image {
	return vs.frameChan
}

func (vs *VideoSource) ErrorChan() <-chan error {
	return vs.errChan
}

type probeData struct {
	Streams []struct {
		Width  uint16 `json:"width"`
		Height uint16 `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(path string) (uint16, uint16, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (uint16, uint16, error) {
	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video streams found")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
