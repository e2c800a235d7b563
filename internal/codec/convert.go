package codec

import "fmt"

// Downmix averages interleaved frames into a single channel.
// Mono input is returned as is.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	out := make([]float32, frames)

	switch channels {
	case 2:
		for f := 0; f < frames; f++ {
			idx := f << 1
			out[f] = (samples[idx] + samples[idx+1]) * 0.5
		}
	default:
		inv := float32(1.0) / float32(channels)
		for f := 0; f < frames; f++ {
			sum := float32(0)
			base := f * channels
			for c := 0; c < channels; c++ {
				sum += samples[base+c]
			}
			out[f] = sum * inv
		}
	}

	return out
}

// Resample converts a mono buffer between rates with linear interpolation.
// The output holds floor(len * to / from) samples.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	out := make([]float32, n)
	last := len(samples) - 1

	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		a, b := samples[idx], samples[idx+1]
		out[i] = a + (b-a)*frac
	}

	return out
}

// LoadMono decodes path, folds it to mono and resamples it to targetRate
func LoadMono(path string, targetRate int) ([]float32, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("%w: target rate %d", ErrInvalidFormat, targetRate)
	}

	buf, err := Decode(path)
	if err != nil {
		return nil, err
	}

	mono := Downmix(buf.Samples, buf.Channels)
	return Resample(mono, buf.SampleRate, targetRate), nil
}
