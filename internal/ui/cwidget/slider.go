package cwidget

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Slider is a slider with its name and current value shown above it.
// OnChangeEnded fires once the user lets go, which is where expensive
// recomputation belongs.
type Slider struct {
	widget.BaseWidget

	labelWidget  *widget.Label
	sliderWidget *widget.Slider

	LabelText string
	Precision int

	OnChanged     func(float64)
	OnChangeEnded func(float64)
}

func NewSlider(label string, lo, hi, step, value float64, precision int) *Slider {
	s := &Slider{LabelText: label, Precision: precision}

	s.labelWidget = widget.NewLabel("")
	s.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	s.sliderWidget = widget.NewSlider(lo, hi)
	s.sliderWidget.Step = step
	s.sliderWidget.SetValue(value)
	s.updateLabel(value)

	s.sliderWidget.OnChanged = func(v float64) {
		s.updateLabel(v)
		if s.OnChanged != nil {
			s.OnChanged(v)
		}
	}
	s.sliderWidget.OnChangeEnded = func(v float64) {
		if s.OnChangeEnded != nil {
			s.OnChangeEnded(v)
		}
	}

	s.ExtendBaseWidget(s)
	return s
}

func (s *Slider) updateLabel(v float64) {
	s.labelWidget.SetText(fmt.Sprintf("%s: %.*f", s.LabelText, s.Precision, v))
}

func (s *Slider) Value() float64 {
	return s.sliderWidget.Value
}

func (s *Slider) SetValue(v float64) {
	s.sliderWidget.SetValue(v)
}

func (s *Slider) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewVBox(s.labelWidget, s.sliderWidget))
}
