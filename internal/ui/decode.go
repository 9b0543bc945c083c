package ui

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"scanlight/internal/config"
	"scanlight/internal/models"
	"scanlight/internal/session"
	"scanlight/internal/ui/cwidget"
	"scanlight/processing/capture"
	"scanlight/processing/graycode"
	"scanlight/processing/scanner"
)

const (
	loadingCameras = "Loading cameras..."
	noCameras      = "No cameras found"
)

// DecodeApp decodes captured pattern sequences dropped onto its window or
// streamed from a capture source.
type DecodeApp struct {
	base

	session   *session.DecodeSession
	processor *scanner.Processor

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container

	cameraInProjector *imagePanel
	projectorInCamera *imagePanel
	median            *imagePanel
	medianInverse     *imagePanel

	statusLabel  *widget.Label
	latencyLabel *widget.Label
	saveButton   *widget.Button
	scanButton   *widget.Button

	patternWin    fyne.Window
	patternCanvas *canvas.Image
}

func NewDecodeApp(a fyne.App, s *session.DecodeSession, cfg *config.Config, logger *zap.SugaredLogger) *DecodeApp {
	return &DecodeApp{
		base:    newBase(a, "Decode scan images", cfg, logger),
		session: s,
	}
}

func (a *DecodeApp) Run() {
	a.cameraInProjector = newImagePanel("Camera in projector")
	a.projectorInCamera = newImagePanel("Projector in camera")
	a.median = newImagePanel("Median image")
	a.medianInverse = newImagePanel("Median inverse image")

	threshold := cwidget.NewSlider("Threshold", 0, 255, 1, float64(a.session.Decoder.Threshold()), 0)
	threshold.OnChangeEnded = func(v float64) {
		t := uint8(v)
		a.config.SetThreshold(t)
		a.background(func() error { return a.session.SetThreshold(t) }, a.refresh)
	}

	resetButton := widget.NewButtonWithIcon("Reset decoder", theme.ContentClearIcon(), func() {
		a.StopScan()
		a.session.Reset()
		a.refresh()
	})
	a.saveButton = widget.NewButtonWithIcon("Save output", theme.DocumentSaveIcon(), func() {
		a.savePath("scan"+graycode.DataSetExtension, func(path string) {
			a.background(func() error { return a.session.Save(path) }, nil)
		})
	})

	a.statusLabel = widget.NewLabel("")
	a.latencyLabel = widget.NewLabel(formatLatency(0))

	a.dynamicSettings = container.NewVBox()
	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.SetSource(config.SourceType(s))
		a.refreshSettingsUI(s)
	})
	sourceTypeSelect.SetSelected(string(a.config.GetSource()))

	a.setupConfigSettings()
	a.scanButton = widget.NewButtonWithIcon("Start scan", theme.MediaPlayIcon(), func() {
		a.StartScan()
	})

	sidebar := container.NewVBox(
		widget.NewLabelWithStyle("Decoder", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabel("Drop a scan directory, images or a .sl file onto the window."),
		threshold,
		resetButton,
		a.saveButton,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Capture", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		a.dynamicSettings,
		a.staticSettings,
		a.scanButton,
	)

	panels := container.NewGridWithColumns(2,
		a.cameraInProjector.content,
		a.projectorInCamera.content,
		a.median.content,
		a.medianInverse.content,
	)
	view := container.NewBorder(
		container.NewHBox(a.statusLabel, widget.NewSeparator(), a.latencyLabel),
		nil, nil, nil,
		panels,
	)

	split := container.NewHSplit(
		container.NewPadded(container.NewVScroll(sidebar)),
		container.NewPadded(view),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)
	a.mainWin.SetOnDropped(func(_ fyne.Position, uris []fyne.URI) {
		if len(uris) == 0 {
			return
		}
		paths := make([]string, 0, len(uris))
		for _, u := range uris {
			paths = append(paths, u.Path())
		}
		a.mainWin.SetTitle(paths[0])
		a.background(func() error { return a.session.DropPaths(paths) }, a.refresh)
	})

	a.refresh()
	a.refreshSettingsUI(string(a.config.GetSource()))

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

// refresh redraws the panels from the decoder. Call on the UI goroutine.
func (a *DecodeApp) refresh() {
	dec := a.session.Decoder
	total := a.session.Payload.FrameCount()
	status := fmt.Sprintf("%s: %d/%d frames", dec.State(), dec.Frame(), total)

	if ds := dec.DataSet(); ds != nil {
		status += fmt.Sprintf(", %d valid pixels", ds.ActiveCount())
		a.cameraInProjector.set(ds.CameraInProjector())
		a.projectorInCamera.set(ds.ProjectorInCamera())
		a.median.set(ds.Median)
		a.medianInverse.set(ds.MedianInverse)
	} else {
		for _, p := range []*imagePanel{a.cameraInProjector, a.projectorInCamera, a.median, a.medianInverse} {
			p.set(nil)
		}
	}
	a.statusLabel.SetText(status)

	if a.session.CanSave() {
		a.saveButton.Enable()
	} else {
		a.saveButton.Disable()
	}
}

// StartScan streams a fresh sequence from the configured capture source.
// Live camera scans show each pattern in a separate window first.
func (a *DecodeApp) StartScan() {
	a.StopScan()

	src, err := capture.NewSource(a.config, a.logger.Named("capture"))
	if err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	proc := scanner.NewProcessor(a.session.Decoder, src, a.logger.Named("scanner"))
	proc.OnProgress = func(models.ScanProgress) {
		fyne.Do(a.refresh)
	}
	if a.config.GetSource() == config.SourceWebcam {
		a.showPatternWindow()
		proc.Pattern = a.showPattern
		proc.Settle = a.config.GetSettle()
	}

	if err := proc.Start(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}
	a.processor = proc
	a.scanButton.Disable()

	go a.runStatLoop(proc)
}

func (a *DecodeApp) StopScan() {
	if a.processor == nil {
		return
	}
	a.processor.Stop()
	<-a.processor.Done()
	a.processor = nil
	a.hidePatternWindow()
}

func (a *DecodeApp) runStatLoop(proc *scanner.Processor) {
	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			fyne.Do(func() {
				a.latencyLabel.SetText(formatLatency(proc.Latency()))
			})
		case err := <-proc.ErrChan:
			fyne.Do(func() {
				dialog.ShowError(err, a.mainWin)
			})
		case <-proc.Done():
			select {
			case err := <-proc.ErrChan:
				fyne.Do(func() {
					dialog.ShowError(err, a.mainWin)
				})
			default:
			}
			fyne.Do(func() {
				a.scanButton.Enable()
				a.hidePatternWindow()
				a.refresh()
			})
			return
		}
	}
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Ingest: %d ms", v.Milliseconds())
}

func (a *DecodeApp) showPatternWindow() {
	if a.patternWin != nil {
		return
	}
	a.patternCanvas = canvas.NewImageFromImage(nil)
	a.patternCanvas.FillMode = canvas.ImageFillStretch
	a.patternCanvas.ScaleMode = canvas.ImageScalePixels

	a.patternWin = a.fyneApp.NewWindow("Pattern")
	a.patternWin.SetContent(a.patternCanvas)
	a.patternWin.SetPadded(false)
	a.patternWin.SetFullScreen(true)
	a.patternWin.SetOnClosed(func() {
		a.patternWin = nil
	})
	a.patternWin.Show()
}

func (a *DecodeApp) hidePatternWindow() {
	if a.patternWin != nil {
		a.patternWin.Close()
	}
}

// showPattern runs on the scanner goroutine.
func (a *DecodeApp) showPattern(frame int) {
	img, err := a.session.Payload.Render(frame)
	if err != nil {
		a.logger.Errorw("render pattern", "frame", frame, "error", err)
		return
	}
	fyne.Do(func() {
		if a.patternCanvas != nil {
			a.patternCanvas.Image = img
			a.patternCanvas.Refresh()
		}
	})
}

func (a *DecodeApp) setupConfigSettings() {
	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	settleInput := cwidget.NewIntInput(
		"Settle (ms)",
		"Enter integer",
		a.config.Capture.SettleMillis,
		func(i int) {
			a.config.Capture.SettleMillis = i
		},
	)

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(settleInput)
}

func (a *DecodeApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.Objects = nil
	a.StopScan()

	switch config.SourceType(sourceType) {
	case config.SourceDirectory, config.SourceWatch:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/scan")
		pathEntry.SetText(a.config.Capture.Directory.Path)
		pathEntry.OnChanged = func(s string) {
			a.config.Capture.Directory.Path = s
		}

		dirBtn := widget.NewButtonWithIcon("Open Folder", theme.FolderOpenIcon(), func() {
			dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
				if err == nil && uri != nil {
					pathEntry.SetText(uri.Path())
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Directory:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, dirBtn, pathEntry))

	case config.SourceVideo:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/scan.mp4")
		pathEntry.SetText(a.config.Capture.Video.Path)
		pathEntry.OnChanged = func(s string) {
			a.config.Capture.Video.Path = s
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			a.openPath(nil, pathEntry.SetText)
		})

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{loadingCameras}, func(s string) {
			if s != loadingCameras && s != noCameras {
				a.config.Capture.Webcam.DeviceID = s
			}
		})
		deviceSelect.SetSelected(loadingCameras)
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)

		go func() {
			devices, err := capture.ListCameras()

			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, a.mainWin)
					deviceSelect.Options = []string{"Error listing cameras"}
				} else if len(devices) == 0 {
					deviceSelect.Options = []string{noCameras}
				} else {
					deviceSelect.Options = devices
					deviceSelect.Enable()

					if a.config.Capture.Webcam.DeviceID != "" {
						deviceSelect.SetSelected(a.config.Capture.Webcam.DeviceID)
					} else {
						deviceSelect.SetSelected(devices[0])
					}
				}
				deviceSelect.Refresh()
			})
		}()

	case config.SourceRemote:
		hostEntry := widget.NewEntry()
		hostEntry.SetPlaceHolder(config.DefaultRemoteHost)
		hostEntry.SetText(a.config.Capture.Remote.Host)
		hostEntry.OnChanged = func(s string) {
			a.config.Capture.Remote.Host = s
		}

		a.dynamicSettings.Add(widget.NewLabel("Capture rig host:"))
		a.dynamicSettings.Add(hostEntry)
	}

	a.dynamicSettings.Refresh()
}
