package blockchain

import (
	"sync"

	"quarrychain.org/quarry-core/chainutil"
)

// ReorganizeHandler receives committed reorganization events.  incoming is
// ordered fork point + 1 to new tip; outgoing is old tip down to fork
// point + 1, matching store pop order.  After Stop a handler receives a
// single terminal event carrying ErrServiceStopped.
type ReorganizeHandler func(err error, forkHeight uint64,
	incoming, outgoing []*chainutil.Block)

// reorgNotification is one queued fan-out event.
type reorgNotification struct {
	err        error
	forkHeight uint64
	incoming   []*chainutil.Block
	outgoing   []*chainutil.Block
}

// notificationBacklog sizes the delivery queue.  Relay from the organizer
// critical section must not block, so the queue is generous; delivery may
// batch behind a slow subscriber but never reorders.
const notificationBacklog = 256

// ReorganizeSubscriber fans committed reorg events out to subscribers in
// commit order on a delivery goroutine off the shared pool.
type ReorganizeSubscriber struct {
	mtx      sync.Mutex
	handlers []ReorganizeHandler
	queue    chan reorgNotification
	quit     chan struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewReorganizeSubscriber returns a subscriber fan-out in the stopped
// state; Start arms it.
func NewReorganizeSubscriber() *ReorganizeSubscriber {
	return &ReorganizeSubscriber{
		queue:   make(chan reorgNotification, notificationBacklog),
		quit:    make(chan struct{}),
		stopped: true,
	}
}

// Start launches the delivery goroutine.
func (s *ReorganizeSubscriber) Start() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.stopped {
		return
	}
	s.stopped = false

	s.wg.Add(1)
	go s.deliver()
}

func (s *ReorganizeSubscriber) deliver() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.queue:
			for _, handler := range s.snapshotHandlers() {
				handler(event.err, event.forkHeight,
					event.incoming, event.outgoing)
			}
		case <-s.quit:
			// Drain whatever was queued before the stop so
			// delivery order matches commit order to the end.
			for {
				select {
				case event := <-s.queue:
					for _, handler := range s.snapshotHandlers() {
						handler(event.err, event.forkHeight,
							event.incoming, event.outgoing)
					}
				default:
					return
				}
			}
		}
	}
}

func (s *ReorganizeSubscriber) snapshotHandlers() []ReorganizeHandler {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	handlers := make([]ReorganizeHandler, len(s.handlers))
	copy(handlers, s.handlers)
	return handlers
}

// Subscribe registers a handler for future reorg events.  A subscriber
// registered after Stop receives the terminal event immediately and is not
// retained.
func (s *ReorganizeSubscriber) Subscribe(handler ReorganizeHandler) {
	s.mtx.Lock()
	if s.stopped {
		s.mtx.Unlock()
		handler(ruleError(ErrServiceStopped, "subscriber stopped"), 0, nil, nil)
		return
	}
	s.handlers = append(s.handlers, handler)
	s.mtx.Unlock()
}

// Relay enqueues a committed reorg event.  Events are delivered in the
// order they are relayed.
func (s *ReorganizeSubscriber) Relay(forkHeight uint64,
	incoming, outgoing []*chainutil.Block) {

	s.mtx.Lock()
	if s.stopped {
		s.mtx.Unlock()
		return
	}
	s.mtx.Unlock()

	s.queue <- reorgNotification{
		err:        nil,
		forkHeight: forkHeight,
		incoming:   incoming,
		outgoing:   outgoing,
	}
}

// Stop delivers one terminal ErrServiceStopped event to every live
// subscriber, releases them, and shuts the delivery goroutine down.
func (s *ReorganizeSubscriber) Stop() {
	s.mtx.Lock()
	if s.stopped {
		s.mtx.Unlock()
		return
	}
	s.stopped = true
	s.mtx.Unlock()

	s.queue <- reorgNotification{
		err: ruleError(ErrServiceStopped, "subscriber stopped"),
	}

	close(s.quit)
	s.wg.Wait()

	s.mtx.Lock()
	s.handlers = nil
	s.mtx.Unlock()
}
