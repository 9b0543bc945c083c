package capture

import (
	"bytes"
	"errors"
	"image"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scanlight/internal/models"
)

const defaultRetryDelay = 2 * time.Second

// RemoteSource receives encoded pattern frames from a capture rig over a
// websocket and answers each with a JSON progress message. The rig ends the
// sequence by closing the connection normally.
type RemoteSource struct {
	serverURL  string
	RetryDelay time.Duration

	logger *zap.SugaredLogger

	frameChan chan image.Image
	errChan   chan error
	acks      chan models.ScanProgress

	stopOnce sync.Once
	stopChan chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewRemoteSource(host string, logger *zap.SugaredLogger) *RemoteSource {
	u := url.URL{Scheme: "ws", Host: host, Path: "/frames"}

	return &RemoteSource{
		serverURL:  u.String(),
		RetryDelay: defaultRetryDelay,
		logger:     logger,
		frameChan:  make(chan image.Image, 5),
		errChan:    make(chan error, 1),
		acks:       make(chan models.ScanProgress, 5),
		stopChan:   make(chan struct{}),
	}
}

func (r *RemoteSource) Start() error {
	go r.runLoop()
	return nil
}

func (r *RemoteSource) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.mu.Lock()
		if r.conn != nil {
			r.conn.Close()
		}
		r.mu.Unlock()
	})
}

func (r *RemoteSource) FrameChan() <-chan image.Image { return r.frameChan }
func (r *RemoteSource) ErrorChan() <-chan error       { return r.errChan }

// Ack queues a progress message for the rig. It never blocks; when the
// queue is full the message is dropped.
func (r *RemoteSource) Ack(progress models.ScanProgress) {
	select {
	case r.acks <- progress:
	default:
	}
}

var errSequenceEnded = errors.New("capture rig ended the sequence")

func (r *RemoteSource) runLoop() {
	defer close(r.frameChan)

	for {
		select {
		case <-r.stopChan:
			return
		default:
		}

		r.logger.Infow("connecting to capture rig", "url", r.serverURL)
		conn, _, err := websocket.DefaultDialer.Dial(r.serverURL, nil)
		if err != nil {
			r.logger.Warnw("connection failed, retrying", "error", err, "delay", r.RetryDelay)
			select {
			case <-time.After(r.RetryDelay):
			case <-r.stopChan:
				return
			}
			continue
		}

		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		r.logger.Info("connected to capture rig")

		err = r.serve(conn)

		if errors.Is(err, errSequenceEnded) {
			r.logger.Info("capture rig finished sending frames")
			return
		}
		select {
		case <-r.stopChan:
			return
		default:
		}
		r.logger.Warnw("connection lost", "error", err)
	}
}

func (r *RemoteSource) serve(conn *websocket.Conn) error {
	errChan := make(chan error, 2)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-r.stopChan:
				return
			case progress := <-r.acks:
				if err := conn.WriteJSON(progress); err != nil {
					errChan <- err
					return
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			kind, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = errSequenceEnded
				}
				errChan <- err
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}

			img, _, err := image.Decode(bytes.NewReader(message))
			if err != nil {
				r.logger.Warnw("frame decode error", "error", err)
				continue
			}

			select {
			case r.frameChan <- img:
			case <-done:
				return
			case <-r.stopChan:
				errChan <- nil
				return
			}
		}
	}()

	err := <-errChan
	close(done)
	conn.Close()
	wg.Wait()
	return err
}
