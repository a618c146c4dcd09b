// Package imagesim implements the portrait similarity heuristic used to gate
// check-in and check-out. It is a deterministic pixel/histogram comparison,
// not facial recognition; scores are heuristics, not calibrated probabilities.
package imagesim

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
)

const (
	// canonicalSize is the edge length both images are resized to before the
	// histogram and pixel comparisons.
	canonicalSize = 300
	// hashSize is the edge length used for the content hash.
	hashSize = 200

	// SoftThreshold is recorded for informational context only.
	SoftThreshold = 50.0
	// DefaultGatingThreshold is the access-control cutoff: scores at or below
	// it deny identity verification. Overridable via configuration.
	DefaultGatingThreshold = 70.0
)

// Result holds the outcome of a portrait comparison. When Err is non-nil the
// scores are all zero and the caller should treat the attempt as a system
// error, not a mismatch.
type Result struct {
	HashMatch           bool    `json:"hash_match"`
	HistogramSimilarity float64 `json:"histogram_similarity"` // [0,1]
	PixelSimilarity     float64 `json:"pixel_similarity"`     // [0,100]
	SimilarityScore     float64 `json:"similarity_score"`     // [0,100]
	RMS                 float64 `json:"rms"`
	Err                 error   `json:"-"`
}

// IsSimilar reports whether the composite score clears the given threshold.
func (r Result) IsSimilar(threshold float64) bool {
	return r.Err == nil && r.SimilarityScore > threshold
}

// Compare scores the similarity of two encoded images (live capture vs stored
// reference). It never panics or propagates decode failures: undecodable input
// yields a zero-confidence Result with Err set.
func Compare(live, stored []byte) Result {
	img1, err := imaging.Decode(bytes.NewReader(live))
	if err != nil {
		return Result{Err: fmt.Errorf("decode live image: %w", err)}
	}
	img2, err := imaging.Decode(bytes.NewReader(stored))
	if err != nil {
		return Result{Err: fmt.Errorf("decode stored image: %w", err)}
	}
	return compare(img1, img2)
}

func compare(img1, img2 image.Image) Result {
	a := imaging.Resize(img1, canonicalSize, canonicalSize, imaging.Lanczos)
	b := imaging.Resize(img2, canonicalSize, canonicalSize, imaging.Lanczos)

	hashMatch := Hash(a) == Hash(b)

	histSimilarity := histogramSimilarity(a, b)
	pixelSimilarity, rms := pixelSimilarity(a, b)

	score := histSimilarity*100*0.4 + pixelSimilarity*0.6

	return Result{
		HashMatch:           hashMatch,
		HistogramSimilarity: histSimilarity,
		PixelSimilarity:     pixelSimilarity,
		SimilarityScore:     score,
		RMS:                 rms,
	}
}

// Hash produces the deterministic content hash of an image: resize to a
// 200x200 grayscale canvas, concatenate the decimal pixel values and SHA-256
// the result. Only near-pixel-identical images share a hash.
func Hash(img image.Image) string {
	gray := imaging.Grayscale(imaging.Resize(img, hashSize, hashSize, imaging.Lanczos))

	var buf bytes.Buffer
	buf.Grow(hashSize * hashSize * 3)
	for y := 0; y < hashSize; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+hashSize*4]
		for x := 0; x < hashSize; x++ {
			// Grayscale output has R == G == B.
			buf.WriteString(strconv.Itoa(int(row[x*4])))
		}
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// HashBytes decodes an encoded image and returns its content hash. Used at
// enrollment time to record the stored portrait's hash.
func HashBytes(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode portrait: %w", err)
	}
	return Hash(img), nil
}

// histogramSimilarity intersects the per-channel color histograms (256 bins
// per RGB channel) and normalizes by the first image's total mass, yielding a
// value in [0,1] where 1.0 means identical distributions.
func histogramSimilarity(a, b *image.NRGBA) float64 {
	histA := histogram(a)
	histB := histogram(b)

	var intersection, total int
	for i := range histA {
		total += histA[i]
		if histA[i] < histB[i] {
			intersection += histA[i]
		} else {
			intersection += histB[i]
		}
	}
	if total == 0 {
		return 0
	}
	return float64(intersection) / float64(total)
}

func histogram(img *image.NRGBA) [768]int {
	var hist [768]int
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			hist[int(row[x*4])]++
			hist[256+int(row[x*4+1])]++
			hist[512+int(row[x*4+2])]++
		}
	}
	return hist
}

// pixelSimilarity computes the mean absolute per-channel difference between
// the two canvases, takes the root-mean-square across the three channel means
// and maps it onto a 0-100 similarity where identical images score 100.
func pixelSimilarity(a, b *image.NRGBA) (similarity, rms float64) {
	w := a.Rect.Dx()
	h := a.Rect.Dy()
	if w == 0 || h == 0 {
		return 0, 0
	}

	var sum [3]float64
	for y := 0; y < h; y++ {
		rowA := a.Pix[y*a.Stride : y*a.Stride+w*4]
		rowB := b.Pix[y*b.Stride : y*b.Stride+w*4]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				d := int(rowA[x*4+c]) - int(rowB[x*4+c])
				if d < 0 {
					d = -d
				}
				sum[c] += float64(d)
			}
		}
	}

	pixels := float64(w * h)
	var sq float64
	for c := 0; c < 3; c++ {
		mean := sum[c] / pixels
		sq += mean * mean
	}
	rms = math.Sqrt(sq / 3)

	return math.Max(0, 100-rms), rms
}
