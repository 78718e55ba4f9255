package video

import (
	"bytes"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// nalAssembler turns H264 RTP payloads into an Annex-B byte stream that
// ffmpeg can decode. Fragmented units (FU-A) are reassembled and aggregated
// ones (STAP-A) split by the pion depacketizer.
type nalAssembler struct {
	depacketizer codecs.H264Packet
	buf          bytes.Buffer
	keyframe     bool
}

// Push adds one RTP packet. Packets that cannot be depacketized are skipped.
func (a *nalAssembler) Push(pkt *rtp.Packet) {
	if pkt == nil || len(pkt.Payload) == 0 {
		return
	}
	nal, err := a.depacketizer.Unmarshal(pkt.Payload)
	if err != nil || len(nal) == 0 {
		return
	}
	if containsIDR(nal) {
		a.keyframe = true
	}
	a.buf.Write(nal)
}

// Len returns the number of buffered bytes.
func (a *nalAssembler) Len() int {
	return a.buf.Len()
}

// HasKeyframe reports whether the buffered stream contains an IDR slice.
func (a *nalAssembler) HasKeyframe() bool {
	return a.keyframe
}

// Take returns the buffered stream and resets the assembler.
func (a *nalAssembler) Take() []byte {
	out := append([]byte(nil), a.buf.Bytes()...)
	a.buf.Reset()
	a.keyframe = false
	return out
}

// containsIDR scans an Annex-B chunk for an IDR slice (NAL type 5).
func containsIDR(annexB []byte) bool {
	for i := 0; i+3 < len(annexB); i++ {
		if annexB[i] == 0 && annexB[i+1] == 0 && annexB[i+2] == 1 {
			if annexB[i+3]&0x1f == 5 {
				return true
			}
			i += 2
		}
	}
	return false
}
