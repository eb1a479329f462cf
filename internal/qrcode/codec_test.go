package qrcode

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	token := "6f1c2a7e-3b7d-4d8e-9f10-1a2b3c4d5e6f"

	img, err := Encode(token)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))

	got, err := Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestEncodeEmpty(t *testing.T) {
	_, err := Encode("")
	assert.Error(t, err)
}

func TestDecodeBlankImage(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blank))

	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestDecodeNotAnImage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("plain text")))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCode)
}
