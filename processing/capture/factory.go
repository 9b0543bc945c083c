package capture

import (
	"fmt"

	"go.uber.org/zap"

	config "scanlight/internal/config"
)

func NewSource(t *config.Config, logger *zap.SugaredLogger) (Source, error) {
	switch t.GetSource() {
	case config.SourceDirectory:
		return NewDirectorySource(t.Capture.Directory.Path, logger), nil
	case config.SourceWatch:
		return NewWatchSource(t.Capture.Directory.Path, logger), nil
	case config.SourceVideo:
		return NewVideoSource(t.Capture.Video.Path, t.GetFPS())
	case config.SourceWebcam:
		return NewFFmpegWebcam(t.Capture.Webcam.DeviceID, t.GetFPS(), t.Camera.Width, t.Camera.Height), nil
	case config.SourceRemote:
		return NewRemoteSource(t.Capture.Remote.Host, logger), nil
	default:
		return nil, fmt.Errorf("unknown capture source: %s", t.GetSource())
	}
}
