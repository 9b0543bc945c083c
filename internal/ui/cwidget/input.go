package cwidget

import (
	"errors"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

var errNotPositive = errors.New("must be greater than zero")

// Input is a labelled entry that parses its text into a T and shows the
// parse error under the entry.
type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged func(T)

	Validator func(string) (T, error)
	Format    func(T) string
}

func newInput[T any](label, placeholder string, defaultValue T, onChanged func(T), format func(T) string) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		OnChanged:    onChanged,
		DefaultValue: defaultValue,
		Format:       format,
	}

	input.labelWidget = widget.NewLabel(input.caption(defaultValue))
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil {
			if input.OnChanged != nil {
				input.OnChanged(res)
			}
			input.labelWidget.SetText(input.caption(res))
		}
	}

	input.ExtendBaseWidget(input)
	return input
}

func (item *Input[T]) caption(v T) string {
	return fmt.Sprintf("%s: %s", item.LabelText, item.Format(v))
}

// NewIntInput accepts positive integers; an empty entry means the default.
func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	input := newInput(label, placeholder, defaultValue, onChanged, strconv.Itoa)
	input.Validator = func(s string) (int, error) {
		if s == "" {
			return input.DefaultValue, nil
		}
		res, err := strconv.Atoi(s)
		if err != nil {
			return input.DefaultValue, err
		}
		if res <= 0 {
			return input.DefaultValue, errNotPositive
		}
		return res, nil
	}
	return input
}

// NewFloatInput accepts non-negative decimals.
func NewFloatInput(label, placeholder string, defaultValue float64, onChanged func(float64)) *Input[float64] {
	input := newInput(label, placeholder, defaultValue, onChanged, func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	})
	input.Validator = func(s string) (float64, error) {
		if s == "" {
			return input.DefaultValue, nil
		}
		res, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return input.DefaultValue, err
		}
		if res < 0 {
			return input.DefaultValue, errors.New("must not be negative")
		}
		return res, nil
	}
	return input
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
}

func (item *Input[T]) SetText(text string) {
	item.entryWidget.SetText(text)
}
