package ui

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"scanlight/internal/config"
)

// base holds what both tools share: the fyne app, the main window, the
// configuration and a logger.
type base struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config *config.Config
	logger *zap.SugaredLogger
}

func newBase(a fyne.App, title string, cfg *config.Config, logger *zap.SugaredLogger) base {
	w := a.NewWindow(title)
	w.Resize(fyne.NewSize(1200, 700))

	w.SetCloseIntercept(func() {
		if err := cfg.SaveByDefault(); err != nil {
			logger.Warnw("failed to save config", "error", err)
		}
		w.Close()
	})

	return base{fyneApp: a, mainWin: w, config: cfg, logger: logger}
}

// background runs task off the UI goroutine, shows its error if any and
// then calls done on the UI goroutine.
func (b *base) background(task func() error, done func()) {
	go func() {
		err := task()
		fyne.Do(func() {
			if err != nil {
				b.logger.Errorw("operation failed", "error", err)
				dialog.ShowError(err, b.mainWin)
			}
			if done != nil {
				done()
			}
		})
	}()
}

// openPath asks for an existing file and passes its path to onPath.
func (b *base) openPath(extensions []string, onPath func(string)) {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, b.mainWin)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		onPath(path)
	}, b.mainWin)
	if len(extensions) > 0 {
		fd.SetFilter(storage.NewExtensionFileFilter(extensions))
	}
	fd.Show()
}

// savePath asks for a destination and passes its path to onPath.
func (b *base) savePath(fileName string, onPath func(string)) {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, b.mainWin)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		writer.Close()
		onPath(path)
	}, b.mainWin)
	fd.SetFileName(fileName)
	fd.Show()
}

// imagePanel is a captioned image that keeps its aspect ratio.
type imagePanel struct {
	image   *canvas.Image
	content fyne.CanvasObject
}

func newImagePanel(title string) *imagePanel {
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(fyne.NewSize(320, 240))

	caption := widget.NewLabelWithStyle(title, fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	return &imagePanel{
		image:   img,
		content: container.NewBorder(caption, nil, nil, nil, img),
	}
}

// set must be called on the UI goroutine.
func (p *imagePanel) set(img image.Image) {
	p.image.Image = img
	p.image.Refresh()
}
