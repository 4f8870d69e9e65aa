// Package share exports transcriptions as QR codes, text downloads and
// clipboard contents.
package share

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/atotto/clipboard"
	qrcode "github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"
)

const (
	// ModuleSize is the pixel size of one QR module.
	ModuleSize = 10
	// TextFileName is the download name for plain-text transcriptions.
	TextFileName = "transcription.txt"
	// QRFileName is the download name for QR images.
	QRFileName = "transcription_qr.png"
)

var (
	// ErrEmpty is returned when there is no transcription to share.
	ErrEmpty = errors.New("nothing to share")
	// ErrTooLong is returned when text exceeds QR capacity.
	ErrTooLong = errors.New("text too long for a QR code")
	// ErrClipboardUnsupported is returned when no clipboard utility exists.
	ErrClipboardUnsupported = errors.New("clipboard is not available on this system")
)

// QRPNG renders text as a black-on-white QR code PNG with low error
// correction and a four-module quiet zone.
func QRPNG(text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmpty
	}

	code, err := qrcode.New(text, qrcode.Low)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTooLong, err)
	}

	// Bitmap includes the quiet zone.
	bitmap := code.Bitmap()
	modules := image.NewGray(image.Rect(0, 0, len(bitmap), len(bitmap)))
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				modules.SetGray(x, y, color.Gray{Y: 0})
			} else {
				modules.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	size := len(bitmap) * ModuleSize
	scaled := image.NewGray(image.Rect(0, 0, size, size))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), modules, modules.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("failed to encode QR image: %w", err)
	}
	return buf.Bytes(), nil
}

// CopyToClipboard places text on the clipboard of the machine running the
// server.
func CopyToClipboard(text string) error {
	if text == "" {
		return ErrEmpty
	}
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
