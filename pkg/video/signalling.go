package video

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Sentinel errors for common conditions.
var (
	// ErrProducerNotFound is returned when the signalling server lists no
	// producer with the configured name.
	ErrProducerNotFound = errors.New("video: producer not found")

	// ErrNoFrame is returned by GetFrame before the first frame is decoded.
	ErrNoFrame = errors.New("video: no frame available")

	// ErrTimeout is returned when the video track does not start in time.
	ErrTimeout = errors.New("video: timeout waiting for video")
)

// GStreamer webrtcsink signalling messages.

type welcomeMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

type listMessage struct {
	Type      string     `json:"type"`
	Producers []producer `json:"producers"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// signalMessage is any message on the signalling socket. Only the fields of
// the given Type are set.
type signalMessage struct {
	Type      string      `json:"type"`
	PeerID    string      `json:"peerId,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	SDP       *sdpPayload `json:"sdp,omitempty"`
	ICE       *icePayload `json:"ice,omitempty"`
}

func parseWelcome(msg []byte) (string, error) {
	var welcome welcomeMessage
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return "", err
	}
	if welcome.Type != "welcome" {
		return "", fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	return welcome.PeerID, nil
}

// selectProducer returns the ID of the producer whose meta name matches.
func selectProducer(msg []byte, name string) (string, error) {
	var list listMessage
	if err := json.Unmarshal(msg, &list); err != nil {
		return "", err
	}
	for _, p := range list.Producers {
		if p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q among %d producers", ErrProducerNotFound, name, len(list.Producers))
}

func parseSignal(msg []byte) (signalMessage, error) {
	var m signalMessage
	err := json.Unmarshal(msg, &m)
	return m, err
}

func answerMessage(sessionID string, sdp webrtc.SessionDescription) signalMessage {
	return signalMessage{
		Type:      "peer",
		SessionID: sessionID,
		SDP:       &sdpPayload{Type: sdp.Type.String(), SDP: sdp.SDP},
	}
}

func candidateMessage(sessionID string, c webrtc.ICECandidateInit) signalMessage {
	return signalMessage{
		Type:      "peer",
		SessionID: sessionID,
		ICE: &icePayload{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		},
	}
}

// candidateInit converts a received ICE payload for the peer connection.
func (p *icePayload) candidateInit() webrtc.ICECandidateInit {
	init := webrtc.ICECandidateInit{Candidate: p.Candidate}
	mid := ""
	if p.SDPMid != nil {
		mid = *p.SDPMid
	}
	var idx uint16
	if p.SDPMLineIndex != nil {
		idx = *p.SDPMLineIndex
	}
	init.SDPMid = &mid
	init.SDPMLineIndex = &idx
	return init
}
