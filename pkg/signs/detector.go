package signs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/reachy-signs/pkg/frame"
)

// DefaultPollInterval is how long DetectSign sleeps when no frame is buffered.
const DefaultPollInterval = 10 * time.Millisecond

// FrameSource delivers frames to a callback from its own goroutine until ctx
// is cancelled. camera.Source implements it.
type FrameSource interface {
	Start(ctx context.Context, onFrame func(*frame.Frame)) error
}

// Config configures a Detector.
type Config struct {
	// PollInterval is the sleep between buffer polls when no frame is available.
	PollInterval time.Duration

	// OrderedCapacity bounds the FIFO used while calibrating.
	OrderedCapacity int

	// Params are the initial calibration parameters.
	Params Params
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    DefaultPollInterval,
		OrderedCapacity: frame.DefaultOrderedCapacity,
		Params:          DefaultParams(),
	}
}

// Analysis is the outcome of running the pipeline over one frame.
type Analysis struct {
	Frame  *frame.Frame `json:"-"`
	Seq    uint64       `json:"seq"`
	Votes  []Vote       `json:"votes"`
	Result Result       `json:"result"`
}

// Attempt describes one bounded-time detection.
type Attempt struct {
	ID      string        `json:"id"`
	Result  Result        `json:"result"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
	Frames  int           `json:"frames"`
}

// Stats holds detector counters.
type Stats struct {
	Attempts       uint64 `json:"attempts"`
	Resolved       uint64 `json:"resolved"`
	TimedOut       uint64 `json:"timed_out"`
	Cancelled      uint64 `json:"cancelled"`
	FramesAnalyzed uint64 `json:"frames_analyzed"`
	LastResult     Result `json:"last_result"`
	LastAttemptID  string `json:"last_attempt_id,omitempty"`
}

// Detector owns the frame buffer fed by a FrameSource and answers "which
// sign is being shown" queries.
//
// Only one consumer runs at a time: DetectSign and Calibrate take turns on
// the buffer. A running Calibrate lends the buffer to a waiting DetectSign
// between frames and resumes once it returns. Parameters can be changed
// through Params() while either runs.
type Detector struct {
	cfg    Config
	src    FrameSource
	logger *slog.Logger

	buffer     *frame.Buffer
	params     *ParamStore
	extractor  *Extractor
	classifier *Classifier

	// consumer is a one-slot semaphore so waiting can honor a deadline
	consumer chan struct{}
	// lend hands the buffer from a running Calibrate to a waiting Detect;
	// the borrower closes the sent channel when done
	lend    chan chan struct{}
	started atomic.Bool

	statsMu sync.Mutex
	stats   Stats
}

// NewDetector creates a detector reading from src. The source is not
// started until Start is called.
func NewDetector(cfg Config, src FrameSource, logger *slog.Logger) (*Detector, error) {
	if src == nil {
		return nil, ErrNoFrameSource
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.OrderedCapacity < 1 {
		cfg.OrderedCapacity = frame.DefaultOrderedCapacity
	}
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	return &Detector{
		cfg:        cfg,
		src:        src,
		logger:     logger.With("component", "signs"),
		buffer:     frame.NewBuffer(frame.LatestWins, cfg.OrderedCapacity),
		params:     NewParamStore(cfg.Params),
		extractor:  NewExtractor(),
		classifier: NewClassifier(),
		consumer:   make(chan struct{}, 1),
		lend:       make(chan chan struct{}),
	}, nil
}

// Start starts the frame source with the buffer as its callback. Calling
// Start again is a no-op.
func (d *Detector) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.src.Start(ctx, d.buffer.Push); err != nil {
		d.started.Store(false)
		return fmt.Errorf("start frame source: %w", err)
	}
	d.logger.Info("frame source started", "poll_interval", d.cfg.PollInterval)
	return nil
}

// Params returns the live parameter store.
func (d *Detector) Params() *ParamStore {
	return d.params
}

// Buffer returns the frame buffer fed by the source.
func (d *Detector) Buffer() *frame.Buffer {
	return d.buffer
}

// Stats returns a snapshot of the detector counters.
func (d *Detector) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// AnalyzeFrame runs extraction and classification over one frame with the
// current parameters. The result is the voted color when exactly one blob
// voted confidently, Ambiguous when several did, NoSignal otherwise.
func (d *Detector) AnalyzeFrame(f *frame.Frame) (Analysis, error) {
	return d.analyze(f, d.params.Get())
}

func (d *Detector) analyze(f *frame.Frame, p Params) (Analysis, error) {
	a := Analysis{Frame: f, Result: NoSignal}
	if f != nil {
		a.Seq = f.Seq
	}

	blobs, err := d.extractor.Extract(f, p)
	if err != nil {
		return a, err
	}

	a.Votes = make([]Vote, 0, len(blobs))
	confident := 0
	for _, b := range blobs {
		v := d.classifier.Classify(f, b, p)
		a.Votes = append(a.Votes, v)
		if v.Confident {
			confident++
			a.Result = v.Color
		}
	}
	if confident > 1 {
		a.Result = Ambiguous
	}

	d.statsMu.Lock()
	d.stats.FramesAnalyzed++
	d.statsMu.Unlock()

	return a, nil
}

// DetectSign waits up to maxDuration for a frame showing exactly one
// confidently colored sign and returns its color. Frames captured before the
// call are discarded. NoSignal is returned once the deadline passes, never
// earlier. If ctx is cancelled first, NoSignal is returned with ctx.Err().
func (d *Detector) DetectSign(ctx context.Context, maxDuration time.Duration) (Result, error) {
	a, err := d.Detect(ctx, maxDuration)
	return a.Result, err
}

// Detect is DetectSign with the attempt details.
func (d *Detector) Detect(ctx context.Context, maxDuration time.Duration) (Attempt, error) {
	a := Attempt{ID: uuid.NewString(), Result: NoSignal, Started: time.Now()}
	deadline := a.Started.Add(maxDuration)
	logger := d.logger.With("attempt", a.ID)

	release, err := d.acquire(ctx, deadline)
	if err != nil {
		a.Elapsed = time.Since(a.Started)
		d.record(a, err)
		return a, err
	}
	defer release()

	d.buffer.Clear()
	logger.Debug("detecting sign", "max_duration", maxDuration)

	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return d.finish(logger, a, err)
		}

		f, ok := d.buffer.PopLatest()
		if !ok {
			wait := time.Until(deadline)
			if wait > d.cfg.PollInterval {
				wait = d.cfg.PollInterval
			}
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return d.finish(logger, a, ctx.Err())
			case <-timer.C:
			}
			continue
		}

		a.Frames++
		analysis, err := d.analyze(f, d.params.Get())
		if err != nil {
			logger.Warn("skipping frame", "seq", f.Seq, "error", err)
			continue
		}
		if analysis.Result.IsColor() {
			a.Result = analysis.Result
			// Leave nothing stale for the next attempt
			d.buffer.Clear()
			return d.finish(logger, a, nil)
		}
	}

	return d.finish(logger, a, nil)
}

func (d *Detector) finish(logger *slog.Logger, a Attempt, err error) (Attempt, error) {
	a.Elapsed = time.Since(a.Started)
	d.record(a, err)

	logger.Info("sign detection finished",
		"result", a.Result,
		"elapsed", a.Elapsed.Round(time.Millisecond),
		"frames", a.Frames,
		"cancelled", err != nil)
	return a, err
}

func (d *Detector) record(a Attempt, err error) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.stats.Attempts++
	d.stats.LastResult = a.Result
	d.stats.LastAttemptID = a.ID
	switch {
	case err != nil:
		d.stats.Cancelled++
	case a.Result.IsColor():
		d.stats.Resolved++
	default:
		d.stats.TimedOut++
	}
}

// acquire waits for the consumer slot, or for a running Calibrate to lend
// it, until ctx is done or the deadline passes. The returned func gives the
// buffer back.
func (d *Detector) acquire(ctx context.Context, deadline time.Time) (func(), error) {
	select {
	case d.consumer <- struct{}{}:
		return d.release, nil
	default:
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	done := make(chan struct{})
	select {
	case d.consumer <- struct{}{}:
		return d.release, nil
	case d.lend <- done:
		return func() { close(done) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrDetectorBusy
	}
}

func (d *Detector) release() {
	<-d.consumer
}

// lendTo hands the buffer to a Detect in latest-wins mode and waits for it
// to finish. The borrower is bounded by its own deadline.
func (d *Detector) lendTo(done <-chan struct{}) {
	d.logger.Debug("calibration paused for detection")
	d.buffer.SetPolicy(frame.LatestWins)
	<-done
	d.buffer.SetPolicy(frame.Ordered)
	d.logger.Debug("calibration resumed")
}

// Calibrate runs the pipeline over consecutive frames and hands every
// annotated view to display until ctx is cancelled. Parameter changes made
// through Params() apply from the next frame. The buffer delivers frames in
// order while calibrating and returns to latest-wins afterwards. A DetectSign
// issued meanwhile runs between two calibration frames.
//
// Calibrate never returns on its own; it returns ctx.Err() once ctx is done.
func (d *Detector) Calibrate(ctx context.Context, display Display) error {
	select {
	case d.consumer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer d.release()

	d.buffer.SetPolicy(frame.Ordered)
	defer d.buffer.SetPolicy(frame.LatestWins)

	d.logger.Info("calibration started")
	defer d.logger.Info("calibration stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case done := <-d.lend:
			d.lendTo(done)
			continue
		default:
		}

		f, ok := d.buffer.PopLatest()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case done := <-d.lend:
				d.lendTo(done)
			case <-time.After(d.cfg.PollInterval):
			}
			continue
		}

		p := d.params.Get()
		analysis, err := d.analyze(f, p)
		if err != nil {
			d.logger.Warn("skipping frame", "seq", f.Seq, "error", err)
			continue
		}
		if display == nil {
			continue
		}

		view, err := Render(f, analysis)
		if err != nil {
			d.logger.Warn("render failed", "seq", f.Seq, "error", err)
			continue
		}
		if err := display.Show(view, analysis); err != nil {
			d.logger.Warn("display failed", "error", err)
		}
		view.Close()
	}
}
