package scanner

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"scanlight/internal/models"
	"scanlight/processing/capture"
	"scanlight/processing/graycode"
)

// Processor pumps frames from a capture source into a decoder and finalizes
// the decode once the whole sequence has arrived.
type Processor struct {
	Source capture.Source

	// Pattern, when set, is called before each frame is awaited with the
	// index of the pattern that should be on the projector. Settle is the
	// pause after it returns, giving the camera time to catch up.
	Pattern func(frame int)
	Settle  time.Duration

	// OnProgress is called after every ingested frame and after the decode.
	OnProgress func(models.ScanProgress)

	ErrChan  chan error
	StopChan chan struct{}

	dec    *graycode.Decoder
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	latency  time.Duration
	ingested int
	active   bool

	stopOnce sync.Once
	done     chan struct{}
}

func NewProcessor(dec *graycode.Decoder, src capture.Source, logger *zap.SugaredLogger) *Processor {
	return &Processor{
		Source:   src,
		ErrChan:  make(chan error, 1),
		StopChan: make(chan struct{}),
		dec:      dec,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start resets the decoder, starts the source and begins ingesting in the
// background. Done is closed when the pump exits.
func (p *Processor) Start() error {
	p.dec.Reset()
	if err := p.Source.Start(); err != nil {
		close(p.done)
		return fmt.Errorf("start capture source: %w", err)
	}

	p.setActive(true)
	go p.run()
	return nil
}

func (p *Processor) run() {
	defer close(p.done)
	defer p.setActive(false)
	defer p.Source.Stop()

	total := p.dec.Payload().FrameCount()
	if !p.showPattern(0) {
		return
	}

	for {
		select {
		case frame, ok := <-p.Source.FrameChan():
			if !ok {
				if n := p.dec.Frame(); n < total {
					p.fail(&graycode.SequenceError{Frame: n, Expected: total, Reason: "capture source ended early"})
				}
				return
			}
			if frame == nil {
				continue
			}

			start := time.Now()
			if err := p.dec.Ingest(frame); err != nil {
				p.fail(err)
				return
			}

			p.mu.Lock()
			p.latency = time.Since(start)
			p.ingested++
			p.mu.Unlock()

			n := p.dec.Frame()
			if n < total {
				p.report(models.ScanProgress{Frame: n, Total: total, State: graycode.Accumulating.String()})
				if !p.showPattern(n) {
					return
				}
				continue
			}

			if err := p.dec.Update(); err != nil {
				p.fail(err)
				return
			}
			ds := p.dec.DataSet()
			p.logger.Infow("scan complete", "frames", n, "active", ds.ActiveCount())
			p.report(models.ScanProgress{Frame: n, Total: total, State: graycode.Ready.String(), Active: ds.ActiveCount()})
			if _, ok := p.Source.(capture.Acker); ok {
				p.awaitClose()
			}
			return

		case err := <-p.Source.ErrorChan():
			p.fail(fmt.Errorf("capture source: %w", err))
			return

		case <-p.StopChan:
			p.logger.Infow("scan stopped", "frames", p.dec.Frame(), "of", total)
			return
		}
	}
}

// awaitClose keeps the source open until the sender ends the sequence so
// the final acknowledgement is delivered.
func (p *Processor) awaitClose() {
	for {
		select {
		case _, ok := <-p.Source.FrameChan():
			if !ok {
				return
			}
			p.logger.Warn("frame received after the sequence completed, ignoring")
		case <-p.Source.ErrorChan():
			return
		case <-p.StopChan:
			return
		}
	}
}

func (p *Processor) showPattern(frame int) bool {
	if p.Pattern == nil {
		return true
	}
	p.Pattern(frame)
	if p.Settle <= 0 {
		return true
	}
	select {
	case <-time.After(p.Settle):
		return true
	case <-p.StopChan:
		return false
	}
}

func (p *Processor) report(progress models.ScanProgress) {
	if acker, ok := p.Source.(capture.Acker); ok {
		acker.Ack(progress)
	}
	if p.OnProgress != nil {
		p.OnProgress(progress)
	}
}

func (p *Processor) fail(err error) {
	p.logger.Errorw("scan failed", "error", err)
	p.report(models.ScanProgress{
		Frame: p.dec.Frame(),
		Total: p.dec.Payload().FrameCount(),
		State: p.dec.State().String(),
		Error: err.Error(),
	})
	select {
	case p.ErrChan <- err:
	default:
	}
}

// Stop ends the scan early. It is safe to call more than once.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.StopChan)
	})
}

func (p *Processor) Done() <-chan struct{} { return p.done }

func (p *Processor) setActive(v bool) {
	p.mu.Lock()
	p.active = v
	p.mu.Unlock()
}

func (p *Processor) IsActive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Latency is the time the last frame took to ingest.
func (p *Processor) Latency() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latency
}

func (p *Processor) Ingested() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ingested
}

