package mqtt

import "sync"

// StatePublisher publishes database state changes from a single goroutine,
// in the order they were queued.
//
// Only the newest unpublished change is kept. A slow broker can make
// intermediate states disappear, but the retained topic always ends on the
// latest one.
type StatePublisher struct {
	publish func(state, path string, extensions []string) error
	onError func(error)

	mu      sync.Mutex
	pending *stateUpdate
	started bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type stateUpdate struct {
	state      string
	path       string
	extensions []string
}

// NewStatePublisher returns a publisher that writes to c's database state
// topic. onError receives publish failures and may be nil.
func NewStatePublisher(c *Client, onError func(error)) *StatePublisher {
	return newStatePublisher(c.PublishDatabaseState, onError)
}

func newStatePublisher(publish func(state, path string, extensions []string) error, onError func(error)) *StatePublisher {
	return &StatePublisher{
		publish: publish,
		onError: onError,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the publishing goroutine.
func (p *StatePublisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.run()
}

// Enqueue records a state change and returns without blocking.
// It is safe to call while holding other locks.
func (p *StatePublisher) Enqueue(state, path string, extensions []string) {
	p.mu.Lock()
	p.pending = &stateUpdate{
		state:      state,
		path:       path,
		extensions: append([]string(nil), extensions...),
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop publishes any pending change and waits for the goroutine to exit.
func (p *StatePublisher) Stop() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}

	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *StatePublisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

func (p *StatePublisher) flush() {
	p.mu.Lock()
	u := p.pending
	p.pending = nil
	p.mu.Unlock()

	if u == nil {
		return
	}
	if err := p.publish(u.state, u.path, u.extensions); err != nil && p.onError != nil {
		p.onError(err)
	}
}
