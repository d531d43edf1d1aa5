package qrcode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	goqrcode "github.com/skip2/go-qrcode"
)

// ContentType of images produced by Encode.
const ContentType = "image/png"

// Encode renders the payload as a square PNG of size pixels with medium
// error correction.
func Encode(p Payload, size int) ([]byte, error) {
	text, err := p.Text()
	if err != nil {
		return nil, fmt.Errorf("marshal qr payload: %w", err)
	}
	png, err := goqrcode.Encode(text, goqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// DecodeImage finds a QR symbol in a PNG or JPEG image and returns its text.
func DecodeImage(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize image: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true}
	result, err := zxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("no qr code found: %w", err)
	}
	return result.GetText(), nil
}

// DecodePNG is DecodeImage over a byte slice.
func DecodePNG(b []byte) (string, error) {
	return DecodeImage(bytes.NewReader(b))
}
