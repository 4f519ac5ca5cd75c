// Package stream defines the Stream descriptor: a channel-unique id, a
// payload type tag, and the atomic receive/transmit/error counters the
// Channel router updates on every payload it handles. Variants attach
// descriptive metadata the router never reads.
package stream

import "sync/atomic"

// PayloadType identifies the media kind a Stream carries.
type PayloadType int

const (
	Video PayloadType = iota
	Audio
	Ancillary
)

func (t PayloadType) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Ancillary:
		return "ancillary"
	default:
		return "unknown"
	}
}

// Counters holds the atomic counters every Stream variant embeds.
type Counters struct {
	received    atomic.Uint64
	transmitted atomic.Uint64
	errors      atomic.Uint64
}

// ReceivedPayload increments the received counter and returns its new value.
func (c *Counters) ReceivedPayload() uint64 { return c.received.Add(1) }

// TransmittedPayload increments the transmitted counter and returns its
// new value. The channel router calls this once per successful transmit
// on each output, so for a stream fanned out to N outputs the count is
// the aggregate across all of them (up to N per payload); no
// per-output breakdown is kept here.
func (c *Counters) TransmittedPayload() uint64 { return c.transmitted.Add(1) }

// PayloadError increments the error counter and returns its new value.
func (c *Counters) PayloadError() uint64 { return c.errors.Add(1) }

// Received returns the current received count.
func (c *Counters) Received() uint64 { return c.received.Load() }

// Transmitted returns the current transmitted count.
func (c *Counters) Transmitted() uint64 { return c.transmitted.Load() }

// Errors returns the current error count.
func (c *Counters) Errors() uint64 { return c.errors.Load() }

// Stream is the interface the channel router depends on. Concrete
// variants (Video/Audio/Ancillary) add descriptive fields of their own.
type Stream interface {
	ID() uint16
	PayloadType() PayloadType
	Counters() *Counters
}

// base is embedded by every variant; it is not itself a valid Stream
// without a PayloadType.
type base struct {
	id       uint16
	counters Counters
}

func (b *base) ID() uint16          { return b.id }
func (b *base) Counters() *Counters { return &b.counters }

// VideoStream describes an elementary video stream.
type VideoStream struct {
	base
	Width     int
	Height    int
	FrameRate float64
}

// NewVideoStream constructs a Video stream descriptor with the given id
// and frame geometry.
func NewVideoStream(id uint16, width, height int, frameRate float64) *VideoStream {
	s := &VideoStream{Width: width, Height: height, FrameRate: frameRate}
	s.id = id
	return s
}

func (*VideoStream) PayloadType() PayloadType { return Video }

// AudioStream describes an elementary audio stream.
type AudioStream struct {
	base
	SampleRate int
	Channels   int
	GroupID    uint32
}

// NewAudioStream constructs an Audio stream descriptor with the given id
// and sampling/grouping parameters.
func NewAudioStream(id uint16, sampleRate, channels int, groupID uint32) *AudioStream {
	s := &AudioStream{SampleRate: sampleRate, Channels: channels, GroupID: groupID}
	s.id = id
	return s
}

func (*AudioStream) PayloadType() PayloadType { return Audio }

// AncillaryStream describes a non-AV data stream (e.g. captions, SCTE-35).
type AncillaryStream struct {
	base
	Language string
}

// NewAncillaryStream constructs an Ancillary stream descriptor with the
// given id and language tag.
func NewAncillaryStream(id uint16, language string) *AncillaryStream {
	s := &AncillaryStream{Language: language}
	s.id = id
	return s
}

func (*AncillaryStream) PayloadType() PayloadType { return Ancillary }
