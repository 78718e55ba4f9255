package video

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pion/webrtc/v3"
)

func TestParseWelcome(t *testing.T) {
	id, err := parseWelcome([]byte(`{"type":"welcome","peerId":"abc-123"}`))
	if err != nil {
		t.Fatalf("parseWelcome: %v", err)
	}
	if id != "abc-123" {
		t.Errorf("peer id = %q, want abc-123", id)
	}

	if _, err := parseWelcome([]byte(`{"type":"list"}`)); err == nil {
		t.Error("expected error for non-welcome message")
	}
	if _, err := parseWelcome([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed message")
	}
}

func TestSelectProducer(t *testing.T) {
	msg := []byte(`{"type":"list","producers":[
		{"id":"p1","meta":{"name":"other"}},
		{"id":"p2","meta":{"name":"reachymini"}}
	]}`)

	id, err := selectProducer(msg, "reachymini")
	if err != nil {
		t.Fatalf("selectProducer: %v", err)
	}
	if id != "p2" {
		t.Errorf("producer = %q, want p2", id)
	}

	if _, err := selectProducer(msg, "missing"); !errors.Is(err, ErrProducerNotFound) {
		t.Errorf("expected ErrProducerNotFound, got %v", err)
	}
}

func TestParseSignal_PeerMessages(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantSDP bool
		wantICE bool
	}{
		{"offer", `{"type":"peer","sessionId":"s1","sdp":{"type":"offer","sdp":"v=0"}}`, true, false},
		{"ice", `{"type":"peer","sessionId":"s1","ice":{"candidate":"candidate:1","sdpMLineIndex":0}}`, false, true},
		{"session started", `{"type":"sessionStarted","sessionId":"s1"}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseSignal([]byte(tt.raw))
			if err != nil {
				t.Fatalf("parseSignal: %v", err)
			}
			if msg.SessionID != "s1" {
				t.Errorf("session = %q, want s1", msg.SessionID)
			}
			if (msg.SDP != nil) != tt.wantSDP || (msg.ICE != nil) != tt.wantICE {
				t.Errorf("sdp=%v ice=%v, want %v/%v", msg.SDP != nil, msg.ICE != nil, tt.wantSDP, tt.wantICE)
			}
		})
	}
}

func TestICEPayload_CandidateInitDefaults(t *testing.T) {
	p := icePayload{Candidate: "candidate:1"}
	init := p.candidateInit()

	if init.SDPMid == nil || *init.SDPMid != "" {
		t.Errorf("SDPMid = %v, want empty string", init.SDPMid)
	}
	if init.SDPMLineIndex == nil || *init.SDPMLineIndex != 0 {
		t.Errorf("SDPMLineIndex = %v, want 0", init.SDPMLineIndex)
	}
}

func TestAnswerMessage_Wire(t *testing.T) {
	msg := answerMessage("s9", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "peer" || decoded["sessionId"] != "s9" {
		t.Errorf("unexpected envelope %s", data)
	}
	sdp, _ := decoded["sdp"].(map[string]interface{})
	if sdp["type"] != "answer" || sdp["sdp"] != "v=0" {
		t.Errorf("unexpected sdp %s", data)
	}
	if _, ok := decoded["ice"]; ok {
		t.Error("answer must not carry an ice field")
	}
}
