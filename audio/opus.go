package audio

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"gopkg.in/hraban/opus.v2"
)

const (
	// libopusfile always decodes at 48kHz regardless of the input rate.
	opusSampleRate = beep.SampleRate(48000)
	// the longest opus frame is 120ms
	decodeBufDuration = 120 * time.Millisecond
)

// probeOpus reports whether the Ogg file at path carries an Opus stream and
// how many channels it has.
func probeOpus(path string) (channels int, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()
	_, header, err := oggreader.NewWith(f)
	if err != nil {
		// vorbis and other codecs fail the OpusHead check
		return 0, false, nil
	}
	channels = int(header.Channels)
	if channels < 1 {
		channels = 1
	}
	return channels, true, nil
}

type opusStreamer struct {
	stream    *opus.Stream
	channels  int
	decodeBuf []float32
	pcm       []float32
	err       error
}

var _ beep.Streamer = (*opusStreamer)(nil)

func openOpus(path string, channels int) (beep.Streamer, beep.Format, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, nil, err
	}
	stream, err := opus.NewStream(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, nil, err
	}
	format := beep.Format{
		SampleRate:  opusSampleRate,
		NumChannels: channels,
		Precision:   4,
	}
	s := &opusStreamer{
		stream:    stream,
		channels:  channels,
		decodeBuf: make([]float32, channels*opusSampleRate.N(decodeBufDuration)),
	}
	return s, format, closers{stream, f}, nil
}

func (s *opusStreamer) Err() error {
	return s.err
}

func (s *opusStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		var sample [2]float64
		sample, ok = s.nextPCM()
		if !ok {
			return i, i > 0
		}
		samples[i] = sample
	}
	return len(samples), true
}

func (s *opusStreamer) nextPCM() (sample [2]float64, ok bool) {
	for len(s.pcm) == 0 {
		if s.err != nil {
			return [2]float64{}, false
		}
		n, err := s.stream.ReadFloat32(s.decodeBuf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return [2]float64{}, false
		}
		s.pcm = s.decodeBuf[:n*s.channels]
	}
	sample = frameToStereo(s.pcm[:s.channels])
	s.pcm = s.pcm[s.channels:]
	return sample, true
}

// frameToStereo maps one interleaved PCM frame onto beep's two channels.
// Mono is duplicated, stereo kept as is, and surround layouts are averaged
// over every channel into both sides.
func frameToStereo(frame []float32) [2]float64 {
	switch len(frame) {
	case 0:
		return [2]float64{}
	case 1:
		return [2]float64{float64(frame[0]), float64(frame[0])}
	case 2:
		return [2]float64{float64(frame[0]), float64(frame[1])}
	}
	var sum float64
	for _, v := range frame {
		sum += float64(v)
	}
	avg := sum / float64(len(frame))
	return [2]float64{avg, avg}
}
