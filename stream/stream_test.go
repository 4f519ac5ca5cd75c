package stream

import "testing"

func TestCountersIncrement(t *testing.T) {
	s := NewVideoStream(7, 1920, 1080, 29.97)

	if s.ID() != 7 {
		t.Fatalf("ID() = %d, want 7", s.ID())
	}
	if s.PayloadType() != Video {
		t.Fatalf("PayloadType() = %v, want Video", s.PayloadType())
	}

	s.Counters().ReceivedPayload()
	s.Counters().ReceivedPayload()
	s.Counters().TransmittedPayload()
	s.Counters().PayloadError()

	if got := s.Counters().Received(); got != 2 {
		t.Fatalf("Received() = %d, want 2", got)
	}
	if got := s.Counters().Transmitted(); got != 1 {
		t.Fatalf("Transmitted() = %d, want 1", got)
	}
	if got := s.Counters().Errors(); got != 1 {
		t.Fatalf("Errors() = %d, want 1", got)
	}
}

func TestVariantsImplementStream(t *testing.T) {
	var streams []Stream
	streams = append(streams,
		NewVideoStream(1, 1280, 720, 60),
		NewAudioStream(2, 48000, 2, 0),
		NewAncillaryStream(3, "en"),
	)

	want := []PayloadType{Video, Audio, Ancillary}
	for i, s := range streams {
		if s.PayloadType() != want[i] {
			t.Fatalf("streams[%d].PayloadType() = %v, want %v", i, s.PayloadType(), want[i])
		}
	}
}
