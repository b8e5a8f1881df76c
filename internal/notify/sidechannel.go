package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SideChannel sends messages in the background after the caller's primary
// write has committed. Failures are logged and never reach the caller.
type SideChannel struct {
	dispatcher Dispatcher
	logger     log.FieldLogger
	timeout    time.Duration
	onFailure  func(Message, error)

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	errs    chan failure
	drained chan struct{}
}

type failure struct {
	msg Message
	err error
}

func NewSideChannel(dispatcher Dispatcher, logger log.FieldLogger, timeout time.Duration) *SideChannel {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &SideChannel{
		dispatcher: dispatcher,
		logger:     logger,
		timeout:    timeout,
		errs:       make(chan failure, 64),
		drained:    make(chan struct{}),
	}
	go s.drain()
	return s
}

// OnFailure registers a hook run for every failed message. Set it before the
// first Dispatch.
func (s *SideChannel) OnFailure(fn func(Message, error)) {
	s.onFailure = fn
}

// Dispatch starts one goroutine per message and returns immediately.
func (s *SideChannel) Dispatch(msgs ...Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.WithField("messages", len(msgs)).Warn("side channel closed, dropping notifications")
		return
	}
	for _, msg := range msgs {
		s.inflight.Add(1)
		go s.send(msg)
	}
}

func (s *SideChannel) send(msg Message) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.dispatcher.Send(ctx, msg.To, msg.Template, msg.Data); err != nil {
		s.errs <- failure{msg: msg, err: fmt.Errorf("send %s to %s: %w", msg.Template, msg.To, err)}
	}
}

func (s *SideChannel) drain() {
	defer close(s.drained)
	for f := range s.errs {
		s.logger.WithError(f.err).WithField("template", f.msg.Template).Error("notification failed")
		if s.onFailure != nil {
			s.onFailure(f.msg, f.err)
		}
	}
}

// Close waits for in-flight messages and stops the error drain. Dispatch
// after Close drops its messages.
func (s *SideChannel) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	close(s.errs)
	<-s.drained
}
