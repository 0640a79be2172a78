package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/v0xg/graphsnap/internal/imageout"
)

var (
	errNotVisible = errors.New("element is not visible")
	errZeroSize   = errors.New("element has zero size")
)

// elementBox returns the element's layout box in viewport pixels.
func elementBox(el *rod.Element) (*proto.DOMRect, error) {
	shape, err := el.Shape()
	if err != nil {
		return nil, fmt.Errorf("element has no layout box: %w", err)
	}
	if len(shape.Quads) == 0 {
		return nil, errZeroSize
	}
	return shape.Box(), nil
}

// captureElement screenshots a single element and decodes the PNG it yields.
func captureElement(ctx context.Context, el *rod.Element) (image.Image, error) {
	el = el.Context(ctx)

	visible, err := el.Visible()
	if err != nil {
		return nil, fmt.Errorf("check visibility: %w", err)
	}
	if !visible {
		return nil, errNotVisible
	}

	box, err := elementBox(el)
	if err != nil {
		return nil, err
	}
	if box.Width < 1 || box.Height < 1 {
		return nil, fmt.Errorf("%w (%.0fx%.0f)", errZeroSize, box.Width, box.Height)
	}

	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	img, err := imageout.Decode(data)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errZeroSize
	}
	return img, nil
}
