package player

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// Output forwards played events to a MIDI output port.
type Output struct {
	mu sync.Mutex

	// port is the open port being played to.
	port drivers.Out

	// nextPort replaces port once no note is sounding.
	nextPort drivers.Out

	notes *noteTracker
}

// NewOutput returns an output that opens port on first use.
func NewOutput(port drivers.Out) *Output {
	return &Output{
		nextPort: port,
		notes:    newNoteTracker(),
	}
}

// Attach subscribes the output to p.
func (o *Output) Attach(p *Player) {
	p.On(MidiEvent, o.handleEvent)
	p.On(Paused, o.silence)
	p.On(Stopped, o.silence)
	p.On(EndOfFile, o.silence)
	p.On(Error, o.silence)
}

// SetPort switches to another port as soon as no note is sounding.
func (o *Output) SetPort(port drivers.Out) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextPort = port
}

func (o *Output) updatePortLocked() error {
	if o.nextPort == nil {
		return nil
	}
	port := o.nextPort
	o.nextPort = nil
	if !port.IsOpen() {
		if err := port.Open(); err != nil {
			return fmt.Errorf("could not open %v: %w", port, err)
		}
	}
	if o.port != nil && o.port != port {
		o.port.Close()
	}
	o.port = port
	log.Printf("Playing to port: %v.", port)
	return nil
}

func (o *Output) handleEvent(n Notification) error {
	msg := n.Event.MIDI()
	if msg == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	// Allow port changes if no note is playing right now.
	if !o.notes.Playing() {
		if err := o.updatePortLocked(); err != nil {
			return err
		}
	}
	if o.port == nil {
		return errors.New("no output port")
	}
	o.notes.Handle(msg)
	return o.port.Send(msg)
}

// silence turns off every note still sounding.
func (o *Output) silence(Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.port == nil {
		return nil
	}
	var errs []error
	for _, msg := range o.notes.AllOff() {
		errs = append(errs, o.port.Send(msg))
	}
	return errors.Join(errs...)
}

// Close silences and closes the port.
func (o *Output) Close() error {
	err := o.silence(Notification{})
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.port != nil {
		err = errors.Join(err, o.port.Close())
		o.port = nil
	}
	o.nextPort = nil
	return err
}
