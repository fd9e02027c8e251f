// Package phase holds the registration and voting time windows of an election.
// All predicates receive the current time explicitly.
package phase

import (
	"fmt"
	"sync"
	"time"
)

// ErrInvalidWindow is returned when the window boundaries are not ordered as
// RegistrationStart < RegistrationEnd <= VotingStart < VotingEnd.
var ErrInvalidWindow = fmt.Errorf("invalid phase window")

// Window contains the four phase boundaries. Times are handled with second
// precision.
type Window struct {
	RegistrationStart time.Time `json:"registrationStart" cbor:"1,keyasint"`
	RegistrationEnd   time.Time `json:"registrationEnd" cbor:"2,keyasint"`
	VotingStart       time.Time `json:"votingStart" cbor:"3,keyasint"`
	VotingEnd         time.Time `json:"votingEnd" cbor:"4,keyasint"`
}

// NewWindow builds a window from unix timestamps.
func NewWindow(regStart, regEnd, voteStart, voteEnd int64) Window {
	return Window{
		RegistrationStart: time.Unix(regStart, 0).UTC(),
		RegistrationEnd:   time.Unix(regEnd, 0).UTC(),
		VotingStart:       time.Unix(voteStart, 0).UTC(),
		VotingEnd:         time.Unix(voteEnd, 0).UTC(),
	}
}

// Truncate returns the window with every boundary truncated to the second.
func (w Window) Truncate() Window {
	return Window{
		RegistrationStart: w.RegistrationStart.Truncate(time.Second).UTC(),
		RegistrationEnd:   w.RegistrationEnd.Truncate(time.Second).UTC(),
		VotingStart:       w.VotingStart.Truncate(time.Second).UTC(),
		VotingEnd:         w.VotingEnd.Truncate(time.Second).UTC(),
	}
}

// Validate checks the ordering of the boundaries.
func (w Window) Validate() error {
	w = w.Truncate()
	switch {
	case w.RegistrationStart.IsZero():
		return fmt.Errorf("%w: registration start not set", ErrInvalidWindow)
	case !w.RegistrationStart.Before(w.RegistrationEnd):
		return fmt.Errorf("%w: registration start must be before registration end", ErrInvalidWindow)
	case w.RegistrationEnd.After(w.VotingStart):
		return fmt.Errorf("%w: registration end must not be after voting start", ErrInvalidWindow)
	case !w.VotingStart.Before(w.VotingEnd):
		return fmt.Errorf("%w: voting start must be before voting end", ErrInvalidWindow)
	}
	return nil
}

// RegistrationActive reports whether RegistrationStart <= now < RegistrationEnd.
func (w Window) RegistrationActive(now time.Time) bool {
	return within(now, w.RegistrationStart, w.RegistrationEnd)
}

// VotingActive reports whether VotingStart <= now < VotingEnd.
func (w Window) VotingActive(now time.Time) bool {
	return within(now, w.VotingStart, w.VotingEnd)
}

// Started reports whether the registration phase has begun.
func (w Window) Started(now time.Time) bool {
	return !now.Truncate(time.Second).Before(w.RegistrationStart.Truncate(time.Second))
}

// VotingStarted reports whether the voting phase has begun.
func (w Window) VotingStarted(now time.Time) bool {
	return !now.Truncate(time.Second).Before(w.VotingStart.Truncate(time.Second))
}

// String implements fmt.Stringer.
func (w Window) String() string {
	return fmt.Sprintf("registration [%s, %s) voting [%s, %s)",
		w.RegistrationStart.Format(time.RFC3339), w.RegistrationEnd.Format(time.RFC3339),
		w.VotingStart.Format(time.RFC3339), w.VotingEnd.Format(time.RFC3339))
}

func within(now, start, end time.Time) bool {
	now = now.Truncate(time.Second)
	return !now.Before(start.Truncate(time.Second)) && now.Before(end.Truncate(time.Second))
}

// Clock holds the current window, if any. With no window set, no phase is
// active. Clock is safe for concurrent use.
type Clock struct {
	mu     sync.RWMutex
	window *Window
}

// NewClock returns a Clock with no window.
func NewClock() *Clock {
	return &Clock{}
}

// SetWindow validates and stores w, replacing any previous window.
func (c *Clock) SetWindow(w Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w = w.Truncate()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = &w
	return nil
}

// Window returns the current window and whether one is set.
func (c *Clock) Window() (Window, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.window == nil {
		return Window{}, false
	}
	return *c.window, true
}

// RegistrationActive reports whether the registration phase is open at now.
func (c *Clock) RegistrationActive(now time.Time) bool {
	w, ok := c.Window()
	return ok && w.RegistrationActive(now)
}

// VotingActive reports whether the voting phase is open at now.
func (c *Clock) VotingActive(now time.Time) bool {
	w, ok := c.Window()
	return ok && w.VotingActive(now)
}
