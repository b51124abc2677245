// Package capture implements the screen capture agent: change detection by
// perceptual hashing, window exclusion, and the capture loop that feeds the
// durable upload queue.
package capture

import (
	"bytes"
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Hash is a 64-bit difference hash of a frame. Visually similar frames yield
// hashes with a small Hamming distance.
type Hash uint64

// dHash dimensions: 9 columns of grayscale produce 8 horizontal gradient bits
// per row, 8 rows total.
const (
	dhashWidth  = 9
	dhashHeight = 8
)

// HashImage computes the difference hash of an image. The frame is shrunk to
// 9x8 grayscale and each bit records whether a pixel is brighter than its
// right neighbor, so the hash captures structure rather than exact pixels.
func HashImage(img image.Image) Hash {
	small := imaging.Grayscale(imaging.Resize(img, dhashWidth, dhashHeight, imaging.Lanczos))

	var h Hash
	bit := 0
	for y := 0; y < dhashHeight; y++ {
		for x := 0; x < dhashWidth-1; x++ {
			left, _, _, _ := small.At(x, y).RGBA()
			right, _, _, _ := small.At(x+1, y).RGBA()
			if left > right {
				h |= 1 << uint(63-bit)
			}
			bit++
		}
	}
	return h
}

// HashFrame decodes an encoded frame and hashes it.
func HashFrame(data []byte) (Hash, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode frame")
	}
	return HashImage(img), nil
}

// Distance returns the Hamming distance between two hashes.
func (h Hash) Distance(other Hash) int {
	return bits.OnesCount64(uint64(h ^ other))
}
