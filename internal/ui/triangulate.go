package ui

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"scanlight/internal/config"
	"scanlight/internal/session"
	"scanlight/internal/ui/cwidget"
	"scanlight/processing/graycode"
)

const previewSize = 640

// TriangulateApp turns a decoded dataset and calibration into a point cloud.
type TriangulateApp struct {
	base

	session *session.TriangulateSession

	ctx    context.Context
	cancel context.CancelFunc

	preview          *imagePanel
	cameraPreview    *imagePanel
	projectorPreview *imagePanel

	statusLabel       *widget.Label
	calibrationLabel  *widget.Label
	triangulateButton *widget.Button
	saveButton        *widget.Button
	savePCDButton     *widget.Button
}

func NewTriangulateApp(a fyne.App, s *session.TriangulateSession, cfg *config.Config, logger *zap.SugaredLogger) *TriangulateApp {
	ctx, cancel := context.WithCancel(context.Background())
	return &TriangulateApp{
		base:    newBase(a, "Triangulate", cfg, logger),
		session: s,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (a *TriangulateApp) Run() {
	defer a.cancel()

	a.preview = newImagePanel("Point cloud (top view)")
	a.cameraPreview = newImagePanel("Projector in camera")
	a.projectorPreview = newImagePanel("Camera in projector")

	a.statusLabel = widget.NewLabel("No points")
	a.calibrationLabel = widget.NewLabel("")

	loadDataSet := widget.NewButtonWithIcon("Load graycode", theme.FolderOpenIcon(), func() {
		a.openPath([]string{graycode.DataSetExtension}, func(path string) {
			a.background(func() error { return a.session.LoadDataSet(path) }, a.refresh)
		})
	})

	distance := cwidget.NewSlider("Distance threshold", 0, 10, 0.001, a.session.DistanceThreshold(), 3)
	distance.OnChangeEnded = func(v float64) {
		a.config.SetDistanceThreshold(v)
		a.background(func() error { return a.session.SetDistanceThreshold(a.ctx, v) }, a.refresh)
	}

	pointSize := cwidget.NewSlider("Point size", 1, 10, 0.5, a.session.PointSize(), 1)
	pointSize.OnChangeEnded = func(v float64) {
		a.config.SetPointSize(v)
		a.session.SetPointSize(v)
		a.refresh()
	}

	a.triangulateButton = widget.NewButtonWithIcon("Triangulate", theme.MediaPlayIcon(), func() {
		a.triangulateButton.Disable()
		a.background(func() error {
			_, err := a.session.Triangulate(a.ctx)
			return err
		}, a.refresh)
	})

	a.saveButton = widget.NewButtonWithIcon("Save output", theme.DocumentSaveIcon(), func() {
		a.savePath("output.raw", func(path string) {
			a.background(func() error { return a.session.SaveWorldMap(path) }, nil)
		})
	})
	a.savePCDButton = widget.NewButtonWithIcon("Save point cloud", theme.DocumentSaveIcon(), func() {
		a.savePath("output.pcd", func(path string) {
			a.background(func() error { return a.session.SavePCD(path) }, nil)
		})
	})

	sidebar := container.NewVBox(
		widget.NewLabelWithStyle("Triangulate", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		loadDataSet,
		distance,
		pointSize,
		a.matrixButton("Load camera intrinsics", a.session.LoadCameraIntrinsics),
		a.matrixButton("Load camera extrinsics", a.session.LoadCameraExtrinsics),
		a.matrixButton("Load projector intrinsics", a.session.LoadProjectorIntrinsics),
		a.matrixButton("Load projector extrinsics", a.session.LoadProjectorExtrinsics),
		a.calibrationLabel,
		widget.NewSeparator(),
		a.triangulateButton,
		a.saveButton,
		a.savePCDButton,
	)

	view := container.NewBorder(
		a.statusLabel, nil, nil, nil,
		container.NewGridWithColumns(2,
			a.preview.content,
			container.NewGridWithRows(2, a.cameraPreview.content, a.projectorPreview.content),
		),
	)

	split := container.NewHSplit(
		container.NewPadded(container.NewVScroll(sidebar)),
		container.NewPadded(view),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)
	a.refresh()

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *TriangulateApp) matrixButton(title string, load func(string)) *widget.Button {
	return widget.NewButton(title, func() {
		a.openPath(nil, func(path string) {
			load(path)
			a.refresh()
		})
	})
}

// refresh must be called on the UI goroutine.
func (a *TriangulateApp) refresh() {
	s := a.session

	if s.CanTriangulate() {
		a.triangulateButton.Enable()
	} else {
		a.triangulateButton.Disable()
	}

	a.calibrationLabel.SetText(fmt.Sprintf("Camera %dx%d calibrated: %t\nProjector %dx%d calibrated: %t",
		s.Camera.Width, s.Camera.Height, s.Camera.Calibrated(),
		s.Projector.Width, s.Projector.Height, s.Projector.Calibrated()))

	if ds := s.Decoder.DataSet(); ds != nil {
		a.cameraPreview.set(ds.ProjectorInCamera())
		a.projectorPreview.set(ds.CameraInProjector())
	} else {
		a.cameraPreview.set(nil)
		a.projectorPreview.set(nil)
	}

	mesh := s.Mesh()
	if mesh.Len() == 0 {
		a.statusLabel.SetText("No points")
		a.preview.set(nil)
		a.saveButton.Disable()
		a.savePCDButton.Disable()
		return
	}

	st := s.Stats()
	a.statusLabel.SetText(fmt.Sprintf("%d points, %d rejected, %d parallel, mean residual %.4g",
		st.Accepted, st.Rejected, st.Degenerate, st.MeanResidual))
	a.preview.set(s.Preview(previewSize, previewSize))
	a.saveButton.Enable()
	a.savePCDButton.Enable()
}
