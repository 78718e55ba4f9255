// Package video provides WebRTC video streaming from Reachy Mini.
//
// The robot publishes its head camera through a GStreamer webrtcsink. The
// Client speaks its websocket signalling protocol, receives the H264 track
// with pion, and decodes pictures to JPEG through ffmpeg.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

// maxPendingBytes caps the H264 buffered while waiting for a keyframe.
const maxPendingBytes = 4 << 20

// Config configures a Client.
type Config struct {
	// RobotAddress is the robot's IP or host name.
	RobotAddress string

	// SignallingPort is the webrtcsink signalling port. Default: 8443
	SignallingPort int

	// ProducerName is the meta name of the camera producer. Default: "reachymini"
	ProducerName string

	// DecodeInterval is the minimum time between decoded frames.
	DecodeInterval time.Duration

	// ConnectTimeout bounds the wait for the first video packet.
	ConnectTimeout time.Duration
}

// DefaultConfig returns the configuration for a Reachy Mini at addr.
func DefaultConfig(addr string) Config {
	return Config{
		RobotAddress:   addr,
		SignallingPort: 8443,
		ProducerName:   "reachymini",
		DecodeInterval: 100 * time.Millisecond,
		ConnectTimeout: 15 * time.Second,
	}
}

// SignallingURL returns the websocket URL of the signalling server.
func (c Config) SignallingURL() string {
	return fmt.Sprintf("ws://%s:%d", c.RobotAddress, c.SignallingPort)
}

// Client connects to Reachy's WebRTC video stream via GStreamer signalling
type Client struct {
	cfg    Config
	logger *slog.Logger

	ws      *websocket.Conn
	pc      *webrtc.PeerConnection
	wsMutex sync.Mutex

	myPeerID   string
	producerID string

	sessionMu sync.RWMutex
	sessionID string

	decoder *Decoder

	onFrameMu sync.RWMutex
	onFrame   func(jpeg []byte)

	trackReady chan struct{}
	closed     atomic.Bool
}

// NewClient creates a new WebRTC video client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig(cfg.RobotAddress)
	if cfg.SignallingPort == 0 {
		cfg.SignallingPort = defaults.SignallingPort
	}
	if cfg.ProducerName == "" {
		cfg.ProducerName = defaults.ProducerName
	}
	if cfg.DecodeInterval <= 0 {
		cfg.DecodeInterval = defaults.DecodeInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}

	return &Client{
		cfg:        cfg,
		logger:     logger.With("component", "video", "robot", cfg.RobotAddress),
		decoder:    NewDecoder(cfg.DecodeInterval),
		trackReady: make(chan struct{}, 1),
	}
}

// OnFrame registers the callback for decoded JPEG frames. It runs on the
// track goroutine and must return quickly.
func (c *Client) OnFrame(fn func(jpeg []byte)) {
	c.onFrameMu.Lock()
	c.onFrame = fn
	c.onFrameMu.Unlock()
}

// Connect establishes the WebRTC connection and waits for the video track.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("connecting to signalling server", "url", c.cfg.SignallingURL())

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	var err error
	c.ws, _, err = dialer.DialContext(ctx, c.cfg.SignallingURL(), nil)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}

	if err := c.waitForWelcome(); err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	c.logger.Debug("got peer id", "peer", c.myPeerID)

	if err := c.findProducer(); err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}
	c.logger.Debug("found producer", "producer", c.producerID)

	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}

	if err := c.send(signalMessage{Type: "startSession", PeerID: c.producerID}); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}

	go c.handleSignalling()

	select {
	case <-c.trackReady:
		c.logger.Info("video connected")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ConnectTimeout):
		return ErrTimeout
	}
}

func (c *Client) readMessage(timeout time.Duration) ([]byte, error) {
	c.ws.SetReadDeadline(time.Now().Add(timeout))
	defer c.ws.SetReadDeadline(time.Time{})

	_, msg, err := c.ws.ReadMessage()
	return msg, err
}

func (c *Client) waitForWelcome() error {
	msg, err := c.readMessage(10 * time.Second)
	if err != nil {
		return err
	}
	c.myPeerID, err = parseWelcome(msg)
	return err
}

func (c *Client) findProducer() error {
	if err := c.send(signalMessage{Type: "list"}); err != nil {
		return err
	}

	msg, err := c.readMessage(5 * time.Second)
	if err != nil {
		return err
	}
	c.producerID, err = selectProducer(msg, c.cfg.ProducerName)
	return err
}

func (c *Client) createPeerConnection() error {
	var err error
	c.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}

	// We want to receive video
	if _, err = c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("got track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.handleVideoTrack(track)
		}
	})

	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		sessionID := c.session()
		if sessionID == "" {
			return
		}
		if err := c.send(candidateMessage(sessionID, candidate.ToJSON())); err != nil {
			c.logger.Warn("send ice candidate failed", "error", err)
		}
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("connection state", "state", state.String())
	})

	return nil
}

func (c *Client) send(msg signalMessage) error {
	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *Client) session() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

func (c *Client) handleSignalling() {
	for !c.closed.Load() {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling error", "error", err)
			}
			return
		}

		msg, err := parseSignal(raw)
		if err != nil {
			c.logger.Debug("ignoring malformed signalling message", "error", err)
			continue
		}

		switch msg.Type {
		case "sessionStarted":
			c.sessionMu.Lock()
			c.sessionID = msg.SessionID
			c.sessionMu.Unlock()

		case "peer":
			c.handlePeerMessage(msg)

		case "endSession":
			c.logger.Info("session ended by robot")
			return
		}
	}
}

func (c *Client) handlePeerMessage(msg signalMessage) {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}

		if err := c.pc.SetRemoteDescription(offer); err != nil {
			c.logger.Warn("set remote description failed", "error", err)
			return
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			c.logger.Warn("create answer failed", "error", err)
			return
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			c.logger.Warn("set local description failed", "error", err)
			return
		}
		if err := c.send(answerMessage(c.session(), answer)); err != nil {
			c.logger.Warn("send answer failed", "error", err)
		}
	}

	if msg.ICE != nil {
		if err := c.pc.AddICECandidate(msg.ICE.candidateInit()); err != nil {
			c.logger.Debug("add ice candidate failed", "error", err)
		}
	}
}

func (c *Client) handleVideoTrack(track *webrtc.TrackRemote) {
	// Signal that we got video
	select {
	case c.trackReady <- struct{}{}:
	default:
	}

	var nals nalAssembler
	ctx := context.Background()

	for !c.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		nals.Push(pkt)

		if !nals.HasKeyframe() && nals.Len() > maxPendingBytes {
			nals.Take()
			continue
		}

		// ffmpeg needs a keyframe to produce a picture from a standalone chunk
		if !nals.HasKeyframe() || !c.decoder.Ready() {
			continue
		}

		jpegData, err := c.decoder.Decode(ctx, nals.Take())
		if err != nil {
			c.logger.Debug("decode failed", "error", err)
			continue
		}
		if jpegData == nil {
			continue
		}

		c.onFrameMu.RLock()
		fn := c.onFrame
		c.onFrameMu.RUnlock()
		if fn != nil {
			fn(jpegData)
		}
	}
}

// GetFrame returns the latest video frame as JPEG bytes
func (c *Client) GetFrame() ([]byte, error) {
	if f := c.decoder.LatestFrame(); f != nil {
		return f, nil
	}
	return nil, ErrNoFrame
}

// Close closes the WebRTC connection
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	var err error
	if c.pc != nil {
		err = c.pc.Close()
	}
	if c.ws != nil {
		if wsErr := c.ws.Close(); err == nil {
			err = wsErr
		}
	}
	return err
}
