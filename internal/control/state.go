package control

import "sync"

// Beat is a position heartbeat from whatever is playing the video.
type Beat struct {
	Position float64 // seconds into the media
	Epoch    float64 // unix seconds the position was sampled at
	HasEpoch bool
}

// State carries pending control intents between the command dispatcher
// and the playback engine. The engine reads it once per tick: pause and
// stop are level signals, seek and beat are consumed on read so one
// request triggers exactly one reaction.
type State struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	seek    *float64
	beat    *Beat
}

// NewState returns an empty, running state.
func NewState() *State {
	return &State{}
}

// Apply folds a parsed command into the state.
func (s *State) Apply(cmd Command) {
	switch cmd.Kind {
	case KindSeek:
		s.RequestSeek(cmd.Position)
	case KindPause:
		s.SetPaused(true)
	case KindResume:
		s.SetPaused(false)
	case KindStop:
		s.RequestStop()
	case KindBeat:
		s.RequestBeat(Beat{Position: cmd.Position, Epoch: cmd.Epoch, HasEpoch: cmd.HasEpoch})
	}
}

// SetPaused sets the desired pause level.
func (s *State) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports the desired pause level.
func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// RequestStop latches the stop signal. It cannot be cleared; the engine
// terminates on observing it.
func (s *State) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Stopped reports whether stop has been requested.
func (s *State) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// RequestSeek stores a seek target in seconds, replacing any pending one.
func (s *State) RequestSeek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seek = &seconds
}

// TakeSeek returns and clears the pending seek target, if any.
func (s *State) TakeSeek() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seek == nil {
		return 0, false
	}
	sec := *s.seek
	s.seek = nil
	return sec, true
}

// RequestBeat stores a heartbeat, replacing any pending one.
func (s *State) RequestBeat(b Beat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beat = &b
}

// TakeBeat returns and clears the pending heartbeat, if any.
func (s *State) TakeBeat() (Beat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beat == nil {
		return Beat{}, false
	}
	b := *s.beat
	s.beat = nil
	return b, true
}
