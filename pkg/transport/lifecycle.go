package transport

// State names the lifecycle position of a transport.
type State string

const (
	StateStopped      State = "stopped"
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StatePaused       State = "paused"
)

// Start arms the transport and begins watching connectivity. Every
// transition into connected flushes the outbound queue.
func (b *Base) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	// Watch fires immediately, so a transport connected before Start
	// flushes anything queued in the meantime.
	b.watch = b.connected.Watch(b.onConnectivity)
	b.log.Debug("transport started")
}

// Stop disarms the transport: it disconnects, releases the connectivity
// watch, discards the queue and clears the paused flag. Middleware and bus
// subscriptions survive.
func (b *Base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.connected.Set(false)
	b.watch.Unsubscribe()
	b.watch = nil
	dropped := b.queue.clear()
	b.dispatch = noopDispatch
	b.started = false
	b.paused = false
	b.log.WithField("dropped", dropped).Debug("transport stopped")
}

// Pause suspends dispatch while keeping queued messages.
func (b *Base) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.paused = true
	b.connected.Set(false)
	b.log.Debug("transport paused")
}

// Resume lifts a pause and flushes the queue through the last dispatch
// function. The channel is not re-opened: if it closed during the pause the
// flush goes to the stale dispatch function.
func (b *Base) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started || !b.paused {
		return
	}
	b.paused = false
	b.connected.Set(true)
	b.log.Debug("transport resumed")
}

// Connect records the dispatch function for the current channel and, unless
// paused, marks the transport connected.
func (b *Base) Connect(dispatch DispatchFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dispatch == nil {
		dispatch = noopDispatch
	}
	b.dispatch = dispatch
	if !b.paused {
		b.connected.Set(true)
	}
}

// Disconnect marks the transport disconnected; started and paused are left
// untouched.
func (b *Base) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected.Set(false)
}

// State reports the current lifecycle position.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case !b.started:
		return StateStopped
	case b.paused:
		return StatePaused
	case b.connected.Get():
		return StateConnected
	default:
		return StateDisconnected
	}
}

// IsConnected reports whether Send dispatches immediately.
func (b *Base) IsConnected() bool {
	return b.connected.Get()
}

// IsStarted reports whether the transport is armed.
func (b *Base) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// IsPaused reports whether the transport is paused.
func (b *Base) IsPaused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// onConnectivity runs with b.mu held: every Set and the initial Watch call
// happen inside a locked lifecycle operation.
func (b *Base) onConnectivity(connected bool) {
	if connected {
		b.flushLocked()
	}
}
