// Package qrcode renders check-in tokens as QR images and reads them back
// from photos taken at the door.
package qrcode

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qr "github.com/skip2/go-qrcode"
)

// Size is the edge length in pixels of encoded images.
const Size = 256

// ErrNoCode is returned by Decode when the image holds no readable QR code.
var ErrNoCode = errors.New("no qr code found")

// Encode returns a PNG image encoding token.
func Encode(token string) ([]byte, error) {
	if token == "" {
		return nil, errors.New("qrcode: empty token")
	}
	png, err := qr.Encode(token, qr.Medium, Size)
	if err != nil {
		return nil, fmt.Errorf("qrcode: encode: %w", err)
	}
	return png, nil
}

// Decode reads a PNG or JPEG image and returns the text of the QR code in
// it.
func Decode(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("qrcode: read image: %w", err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("qrcode: bitmap: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return res.GetText(), nil
}
