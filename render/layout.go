package render

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/esignkit/signcore/fonts"
	"github.com/esignkit/signcore/sigvalue"
	"go.uber.org/zap"
)

var (
	errInvalidGeometry = errors.New("field has no drawable area")
	errNoRoom          = errors.New("no room above caption")
	errUndrawableText  = errors.New("typed signature has no characters the standard fonts can show")
)

var fieldTypes = map[string]bool{
	"text": true, "date": true, "number": true, "phone": true, "select": true,
	"signature": true, "initials": true, "checkbox": true, "radio": true,
	"multiple": true, "cells": true, "image": true, "file": true,
}

func isSignatureType(t string) bool {
	return t == "signature" || t == "initials"
}

// fieldLayout is the drawing plan of one item. visualErr reports a
// signature visual that could not be drawn while the rest of the field,
// its caption, still was.
type fieldLayout struct {
	elements   []Element
	caption    []string
	textHeight float64
	visualErr  error
}

func textSize(h float64) float64 {
	return math.Min(math.Max(h*0.65, 8), 16)
}

// baseline vertically centres a line of the given size in [y, y+h].
func baseline(y, h, size float64) float64 {
	return y + (h-size)/2 + size*0.25
}

func (r *Renderer) layout(it Item, rect Rect, s Settings) (*fieldLayout, error) {
	if !(rect.W > 0 && rect.H > 0) || math.IsInf(rect.W, 0) || math.IsInf(rect.H, 0) {
		return nil, errInvalidGeometry
	}

	ftype := strings.ToLower(strings.TrimSpace(it.Field.Type))
	if ftype == "" {
		ftype = "text"
	}

	raw := it.Value
	if raw == "" && !isSignatureType(ftype) {
		raw = it.Field.DefaultValue
	}

	if !fieldTypes[ftype] {
		r.logger.Warn("drawing field as plain text",
			zap.String("field", it.Field.Name),
			zap.String("type", ftype),
			zap.Error(ErrUnsupportedFieldType))
		ftype = "text"
	}

	value, err := sigvalue.Parse(raw, ftype)
	if err != nil {
		r.logger.Debug("using raw value", zap.String("field", it.Field.Name), zap.Error(err))
	}

	l := &fieldLayout{}
	if isSignatureType(ftype) {
		r.layoutSignature(l, it, value, rect, s)
		return l, nil
	}

	if value.IsEmpty() && !(ftype == "radio" && it.Field.Name != "") {
		return l, nil
	}

	sans := fonts.Get(fonts.Sans)
	switch value.Kind {
	case sigvalue.Checkbox:
		l.elements = checkbox(rect, value.Checked)

	case sigvalue.Cells:
		size := textSize(rect.H)
		n := utf8.RuneCountInString(value.Text)
		cell := rect.W / float64(n)
		i := 0
		for _, c := range value.Text {
			ch := string(c)
			w := sans.Width(ch, size)
			l.elements = append(l.elements, TextElement{
				Content: ch, Font: sans, Size: size,
				X: rect.X + float64(i)*cell + (cell-w)/2,
				Y: baseline(rect.Y, rect.H, size),
			})
			i++
		}

	case sigvalue.Multiple:
		l.elements = plainText(rect, strings.Join(value.Items, ", "))

	case sigvalue.Radio, sigvalue.Empty:
		text := value.Text
		if text == "" {
			text = "Choose " + it.Field.Name
		}
		l.elements = plainText(rect, text)

	case sigvalue.Image:
		l.elements = plainText(rect, "[IMAGE: "+value.URL+"]")

	case sigvalue.File:
		l.elements = plainText(rect, "[DOWNLOAD: "+basename(value.URL)+"]")

	case sigvalue.Ink:
		// Ink outside a signature field is drawn over the whole box.
		l.elements = inkPaths(value.Strokes, rect)

	default:
		l.elements = plainText(rect, value.Text)
	}
	return l, nil
}

func (r *Renderer) layoutSignature(l *fieldLayout, it Item, value sigvalue.Value, rect Rect, s Settings) {
	l.caption = CaptionLines(s, it.Signer, s.signatureID(it.Signer))
	l.textHeight = TextHeight(len(l.caption))

	sans := fonts.Get(fonts.Sans)
	for i, line := range l.caption {
		l.elements = append(l.elements, TextElement{
			Content: line, Font: sans, Size: captionFontSize,
			X: rect.X + captionPadLeft,
			Y: rect.Y + captionPadBottom + float64(i)*captionLineSpacing,
		})
	}

	// The signature itself sits above the caption.
	sub := rect
	if l.textHeight > 0 {
		sub.Y = rect.Y + l.textHeight + captionLift
		sub.H = math.Max(rect.H-l.textHeight-captionLift, 0)
	}

	if value.IsEmpty() {
		return
	}
	if sub.H <= 0 {
		l.visualErr = errNoRoom
		return
	}

	var err error
	switch value.Kind {
	case sigvalue.Ink:
		l.elements = append(l.elements, inkPaths(value.Strokes, sub)...)
	case sigvalue.Text:
		if !drawable(value.Text) {
			err = errUndrawableText
			break
		}
		l.elements = append(l.elements, typedSignature(value.Text, sub))
	default:
		err = fmt.Errorf("cannot draw %s value in a signature field", value.Kind)
	}
	if err != nil {
		l.visualErr = err
		l.elements = append(l.elements, errorBox(sub, err)...)
	}
}

// drawable reports whether text has at least one visible character the
// WinAnsi fonts can show.
func drawable(text string) bool {
	for _, r := range text {
		if r > ' ' && fonts.Encodable(r) {
			return true
		}
	}
	return false
}

// inkPaths maps normalized stroke points into the area.
func inkPaths(strokes []sigvalue.Stroke, area Rect) []Element {
	var out []Element
	for _, s := range strokes {
		if len(s) == 0 {
			continue
		}
		p := PathElement{Width: 1.5, Color: black}
		for _, pt := range s {
			x := area.X + clamp01(pt.X)*area.W
			y := area.Y + clamp01(pt.Y)*area.H
			p.Points = append(p.Points, [2]float64{x, y})
		}
		out = append(out, p)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func typedSignature(text string, area Rect) Element {
	script := fonts.Get(fonts.Script)
	size := math.Min(area.H*0.7, 36)
	for size > 6 && script.Width(text, size) > area.W-4 {
		size--
	}
	w := script.Width(text, size)
	return TextElement{
		Content: text, Font: script, Size: size,
		X: area.X + math.Max((area.W-w)/2, 0),
		Y: baseline(area.Y, area.H, size),
	}
}

func plainText(rect Rect, text string) []Element {
	size := textSize(rect.H)
	return []Element{TextElement{
		Content: text, Font: fonts.Get(fonts.Sans), Size: size,
		X: rect.X,
		Y: baseline(rect.Y, rect.H, size),
	}}
}

func checkbox(rect Rect, checked bool) []Element {
	side := math.Min(rect.W, rect.H)
	x := rect.X + (rect.W-side)/2
	y := rect.Y + (rect.H-side)/2
	out := []Element{RectElement{X: x, Y: y, W: side, H: side, Width: 1, Stroke: &black}}
	if checked {
		out = append(out, PathElement{
			Width: math.Max(side/10, 1),
			Color: black,
			Points: [][2]float64{
				{x + side*0.2, y + side*0.5},
				{x + side*0.42, y + side*0.25},
				{x + side*0.8, y + side*0.78},
			},
		})
	}
	return out
}

func errorBox(rect Rect, err error) []Element {
	if !(rect.W > 0) || math.IsInf(rect.W, 0) {
		rect.W = 120
	}
	if !(rect.H > 0) || math.IsInf(rect.H, 0) {
		rect.H = 14
	}
	size := math.Min(8, rect.H)
	return []Element{
		RectElement{X: rect.X, Y: rect.Y, W: rect.W, H: rect.H, Width: 0.5, Stroke: &red},
		TextElement{
			Content: "[ERROR: " + err.Error() + "]", Font: fonts.Get(fonts.Sans), Size: size,
			X: rect.X + 2, Y: baseline(rect.Y, rect.H, size), Color: red,
		},
	}
}

func basename(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(raw)
}
