package player

import (
	"fmt"
	"regexp"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var (
	badPortsRE       = regexp.MustCompile(`\bMidi Through\b|\bPipeWire-System\b|\bPipeWire-RT-Event\b`)
	usbPortsRE       = regexp.MustCompile(`\bUSB|\bUM-`)
	softSynthPortsRE = regexp.MustCompile(`\bFLUID\b|\bSynth\b|\bTiMidity\b`)
)

// FindBestOutPort picks an output port of the registered MIDI drivers.
func FindBestOutPort(pattern string, preferred string) (drivers.Out, error) {
	return FindBestPort(midi.GetOutPorts(), pattern, preferred)
}

// FindBestPort picks the port to play to. Ports matching pattern win, then
// the port named preferred, then any port that is not a loopback. Among
// those, hardware USB ports are preferred over software synthesizers.
func FindBestPort(ports []drivers.Out, pattern string, preferred string) (drivers.Out, error) {
	var candidates []drivers.Out
	if pattern != "" {
		portRE, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile -port RE %v: %w", pattern, err)
		}
		candidates = filterPorts(ports, func(name string) bool {
			return portRE.MatchString(name)
		})
	}
	if len(candidates) == 0 && preferred != "" {
		candidates = filterPorts(ports, func(name string) bool {
			return name == preferred
		})
	}
	if len(candidates) == 0 {
		candidates = filterPorts(ports, func(name string) bool {
			return !badPortsRE.MatchString(name)
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no selected port found among %d ports", len(ports))
	}
	return slices.MinFunc(candidates, func(a, b drivers.Out) int {
		if d := portRank(a) - portRank(b); d != 0 {
			return d
		}
		// Otherwise sort arbitrarily.
		return a.Number() - b.Number()
	}), nil
}

func filterPorts(ports []drivers.Out, keep func(name string) bool) []drivers.Out {
	var out []drivers.Out
	for _, port := range ports {
		if keep(port.String()) {
			out = append(out, port)
		}
	}
	return out
}

// portRank orders ports by preference, lowest first.
func portRank(port drivers.Out) int {
	name := port.String()
	rank := 0
	if !usbPortsRE.MatchString(name) {
		rank += 2
	}
	if softSynthPortsRE.MatchString(name) {
		rank++
	}
	return rank
}
