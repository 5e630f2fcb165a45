// Package mediahelp provides the platform audio helpers ProcessAudioGap
// delegates to: synthesising silence over a gap in the audio timeline; no
// discontinuity marker is produced. Silence is produced, never decoded — this
// core carries no media parsing of its own.
package mediahelp

import "github.com/zaf/g711"

// AudioCodec distinguishes how ProcessAudioGap's silence should be
// encoded: raw PCM, AAC-bound PCM, or the platform's G.711 variants.
type AudioCodec uint8

const (
	CodecPCM AudioCodec = iota
	CodecAAC
	CodecG711Ulaw
	CodecG711Alaw
)

// SilenceDurationSamples converts a gap duration in nanoseconds to a
// sample count at sampleRate, rounding down — a partial trailing sample is
// better dropped than over-filled with an extra zero.
func SilenceDurationSamples(durationNs int64, sampleRate uint32) int {
	if durationNs <= 0 || sampleRate == 0 {
		return 0
	}
	return int(durationNs * int64(sampleRate) / 1_000_000_000)
}

// GapFiller synthesises the silence buffer ProcessAudioGap injects while
// preserving the audio timeline.
type GapFiller struct {
	SampleRate uint32
	Channels   uint16
}

// Fill returns durationNs worth of silence encoded per codec. For
// CodecPCM/CodecAAC it returns zeroed 16-bit PCM samples (AAC frames are
// synthesised upstream by the pipeline's own silence generator — this
// helper only ever emits raw PCM or G.711); for the G.711 variants the
// zeroed PCM is run through the g711 encoder.
func (g GapFiller) Fill(durationNs int64, codec AudioCodec) []byte {
	samples := SilenceDurationSamples(durationNs, g.SampleRate)
	if samples <= 0 {
		return nil
	}
	channels := int(g.Channels)
	if channels == 0 {
		channels = 1
	}
	pcm := make([]byte, samples*channels*2) // 16-bit PCM, zeroed == silence

	switch codec {
	case CodecG711Ulaw:
		return g711.EncodeUlaw(pcm)
	case CodecG711Alaw:
		return g711.EncodeAlaw(pcm)
	default:
		return pcm
	}
}
