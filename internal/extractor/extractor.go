// Package extractor turns a decoded AudioBuffer into a Fingerprint: frame
// the signal, window it, take its magnitude spectrum, fold that into
// NumBands log-energy bands, and hash the sign of each band's
// frame-to-frame derivative.
//
// The pipeline uses a Hamming window and an FFT-based magnitude spectrum,
// with a Chromaprint-style banding and derivative-sign hashing scheme on
// top.
package extractor

import (
	"math"

	"github.com/arcspan/fingermatch/internal/model"
	"github.com/mjibson/go-dsp/fft"
)

const (
	FrameSize = 4096
	HopSize   = FrameSize / 2
	NumBands  = 33

	// HashBits is the width of the derivative hash. NumBands is 33 but a
	// hash is 32 bits wide; band NumBands-1 is computed (it still feeds
	// prevFeatures for the *next* frame's derivative) but never
	// contributes a bit to the hash itself.
	HashBits = 32
)

// Hamming returns a Hamming window of length n: w[i] = 0.54 - 0.46*cos(2*pi*i/(n-1)).
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// magnitudeSpectrum returns |X_k| for the first half of the FFT of frame
// (the spectrum is symmetric for real input).
func magnitudeSpectrum(frame []float64) []float64 {
	spectrum := fft.FFTReal(frame)
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplxAbs(spectrum[i])
	}
	return mag
}

func cmplxAbs(c complex128) float64 {
	re, im := real(c), imag(c)
	return math.Sqrt(re*re + im*im)
}

// bandEnergies folds a magnitude spectrum into NumBands log-energy bands:
// feature[b] = log(1 + sum(|X_k|^2)) over the bins owned by band b.
// Bands own spectrum.size()/NumBands bins each, in order; any trailing
// bins beyond the last band's range are not assigned to any band.
func bandEnergies(spectrum []float64) [NumBands]float64 {
	var features [NumBands]float64
	binsPerBand := len(spectrum) / NumBands

	for band := 0; band < NumBands; band++ {
		start := band * binsPerBand
		end := start + binsPerBand
		if end > len(spectrum) {
			end = len(spectrum)
		}

		var energy float64
		for bin := start; bin < end; bin++ {
			energy += spectrum[bin] * spectrum[bin]
		}
		features[band] = math.Log1p(energy)
	}

	return features
}

// hashFeatures sets bit i of the hash when band i's energy increased since
// the previous frame (i ranges over the first HashBits bands only).
func hashFeatures(features, prev [NumBands]float64) uint32 {
	var hash uint32
	for i := 0; i < HashBits; i++ {
		if features[i]-prev[i] > 0 {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// Extract computes a Fingerprint from buf. It returns an empty Fingerprint
// (zero hashes) when buf has fewer than FrameSize samples, matching the
// original's guard against an empty/short buffer producing garbage frames.
func Extract(buf model.AudioBuffer) model.Fingerprint {
	if len(buf.Samples) == 0 || buf.SampleRate <= 0 {
		return model.Fingerprint{}
	}

	durationMs := int64(len(buf.Samples)) * 1000 / int64(buf.SampleRate)

	if len(buf.Samples) < FrameSize {
		return model.Fingerprint{}
	}

	window := Hamming(FrameSize)
	numFrames := (len(buf.Samples)-FrameSize)/HopSize + 1
	hashes := make([]uint32, 0, numFrames)

	var prevFeatures [NumBands]float64
	frame := make([]float64, FrameSize)

	for i := 0; i < numFrames; i++ {
		start := i * HopSize
		copy(frame, buf.Samples[start:start+FrameSize])
		for j := range frame {
			frame[j] *= window[j]
		}

		spectrum := magnitudeSpectrum(frame)
		features := bandEnergies(spectrum)

		hashes = append(hashes, hashFeatures(features, prevFeatures))
		prevFeatures = features
	}

	return model.Fingerprint{Hashes: hashes, DurationMs: durationMs}
}

// Digest renders a Fingerprint's hashes as a lowercase, zero-padded hex
// string — one 8-character group per hash, concatenated in order (the
// cache key is a prefix of this string).
func Digest(fp model.Fingerprint) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, len(fp.Hashes)*8)
	for i, h := range fp.Hashes {
		for j := 7; j >= 0; j-- {
			buf[i*8+j] = hexDigits[h&0xf]
			h >>= 4
		}
	}
	return string(buf)
}
