package imagesim

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePNG renders an image to PNG bytes for the decode path.
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// solidImage returns a uniformly colored test image.
func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// noiseImage returns a deterministic pseudo-random test image.
func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func TestCompareIdenticalImages(t *testing.T) {
	portrait := encodePNG(t, noiseImage(320, 240, 1))

	res := Compare(portrait, portrait)
	require.NoError(t, res.Err)

	assert.True(t, res.HashMatch)
	assert.InDelta(t, 1.0, res.HistogramSimilarity, 1e-9)
	assert.InDelta(t, 100.0, res.PixelSimilarity, 1e-9)
	assert.InDelta(t, 100.0, res.SimilarityScore, 0.01)
	assert.True(t, res.IsSimilar(DefaultGatingThreshold))
}

func TestCompareUnrelatedImages(t *testing.T) {
	white := encodePNG(t, solidImage(300, 300, color.NRGBA{R: 250, G: 250, B: 250, A: 255}))
	black := encodePNG(t, solidImage(300, 300, color.NRGBA{R: 5, G: 5, B: 5, A: 255}))

	res := Compare(white, black)
	require.NoError(t, res.Err)

	assert.False(t, res.HashMatch)
	assert.Less(t, res.SimilarityScore, DefaultGatingThreshold)
	assert.False(t, res.IsSimilar(DefaultGatingThreshold))
	assert.False(t, res.IsSimilar(SoftThreshold))
}

func TestCompareScoreBounds(t *testing.T) {
	a := encodePNG(t, noiseImage(300, 300, 2))
	b := encodePNG(t, noiseImage(300, 300, 3))

	res := Compare(a, b)
	require.NoError(t, res.Err)

	assert.GreaterOrEqual(t, res.SimilarityScore, 0.0)
	assert.LessOrEqual(t, res.SimilarityScore, 100.0)
	assert.GreaterOrEqual(t, res.HistogramSimilarity, 0.0)
	assert.LessOrEqual(t, res.HistogramSimilarity, 1.0)
}

func TestCompareUndecodableInput(t *testing.T) {
	valid := encodePNG(t, solidImage(10, 10, color.NRGBA{A: 255}))
	garbage := []byte("not an image at all")

	testCases := []struct {
		name         string
		live, stored []byte
	}{
		{"Garbage live image", garbage, valid},
		{"Garbage stored image", valid, garbage},
		{"Empty input", nil, valid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := Compare(tc.live, tc.stored)
			assert.Error(t, res.Err)
			assert.Equal(t, 0.0, res.SimilarityScore)
			assert.False(t, res.IsSimilar(DefaultGatingThreshold))
		})
	}
}

func TestHashIsDeterministic(t *testing.T) {
	img := noiseImage(123, 77, 4)
	assert.Equal(t, Hash(img), Hash(img))

	other := noiseImage(123, 77, 5)
	assert.NotEqual(t, Hash(img), Hash(other))
}

func TestHashBytes(t *testing.T) {
	data := encodePNG(t, noiseImage(64, 64, 6))

	h1, err := HashBytes(data)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	_, err = HashBytes([]byte("garbage"))
	assert.Error(t, err)
}
