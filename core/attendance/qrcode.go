package attendance

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

const (
	codeBytes = 32
	imageSize = 256
)

// newCodeFunc returns a new random QR code value. mockable
var newCodeFunc = func() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return hex.EncodeToString(b), nil
}

// CodeImage encodes code as a PNG QR image, returned as a data URL.
func CodeImage(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, imageSize)
	if err != nil {
		return "", errors.Wrap(err, "encoding QR code")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
