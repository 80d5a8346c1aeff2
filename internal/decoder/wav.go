// Package decoder turns a WAV file into an AudioBuffer: mono float64
// samples in [-1, 1] at a declared sample rate. It's an external
// collaborator to the matching core — nothing else in fingermatch imports
// it except cmd/server, which needs some way to turn a file into input.
package decoder

import (
	"fmt"
	"os"

	"github.com/arcspan/fingermatch/internal/model"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a PCM WAV file at path and returns a mono AudioBuffer.
// Multichannel input is downmixed by averaging channels.
func DecodeWAV(path string) (model.AudioBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.AudioBuffer{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return model.AudioBuffer{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	if !dec.IsValidFile() {
		return model.AudioBuffer{}, fmt.Errorf("decoding %s: not a valid WAV file", path)
	}

	numChannels := buf.Format.NumChannels
	if numChannels < 1 {
		numChannels = 1
	}

	maxAmplitude := float64(int(1) << (dec.BitDepth - 1))
	if dec.BitDepth == 0 {
		maxAmplitude = float64(1 << 15)
	}

	frameCount := len(buf.Data) / numChannels
	samples := make([]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum float64
		for ch := 0; ch < numChannels; ch++ {
			sum += float64(buf.Data[i*numChannels+ch])
		}
		samples[i] = (sum / float64(numChannels)) / maxAmplitude
	}

	return model.AudioBuffer{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
	}, nil
}
