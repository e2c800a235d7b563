package engine

// MsToSamples converts milliseconds to a sample position, truncating
func MsToSamples(ms uint64, sampleRate int) uint64 {
	if sampleRate <= 0 {
		return 0
	}
	return ms * uint64(sampleRate) / 1000
}

// SamplesToMs converts a sample position to milliseconds, truncating
func SamplesToMs(samples uint64, sampleRate int) uint64 {
	if sampleRate <= 0 {
		return 0
	}
	return samples * 1000 / uint64(sampleRate)
}
