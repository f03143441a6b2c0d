package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/divVerent/midistream/internal/decoder"
	"github.com/divVerent/midistream/internal/file"
	"github.com/divVerent/midistream/internal/player"
	"github.com/divVerent/midistream/internal/version"
)

var (
	i               = flag.String("i", "", "input file name (.mid, or .mid.age with -passphrase)")
	passphrase      = flag.String("passphrase", "", "passphrase for age encrypted input")
	o               = flag.String("o", "", "output file name (YAML); default is stdout")
	events          = flag.Bool("events", false, "include all events of each track")
	checkpointEvery = flag.Int64("checkpoint_every", 0, "when positive, list seek checkpoints every this many ticks")
	showVersion     = flag.Bool("version", false, "print the version and exit")
)

type tempoChange struct {
	Tick int64   `yaml:"tick"`
	BPM  float64 `yaml:"bpm"`
}

type eventInfo struct {
	Tick    int64  `yaml:"tick"`
	Name    string `yaml:"name"`
	Channel *uint8 `yaml:"channel,omitempty"`
	Text    string `yaml:"text,omitempty"`
	Data    string `yaml:"data,omitempty"`
}

type trackInfo struct {
	Number      int         `yaml:"number"`
	Name        string      `yaml:"name,omitempty"`
	Bytes       int         `yaml:"bytes"`
	Events      int         `yaml:"events"`
	Ticks       int64       `yaml:"ticks"`
	Instruments []int       `yaml:"instruments,omitempty,flow"`
	EventList   []eventInfo `yaml:"event_list,omitempty"`
}

type checkpointInfo struct {
	Tick    int64    `yaml:"tick"`
	BPM     float64  `yaml:"bpm"`
	Cursors []int    `yaml:"cursors,flow"`
	Status  []string `yaml:"status,flow"`
}

type summary struct {
	File        string           `yaml:"file"`
	Size        int              `yaml:"size"`
	Format      int              `yaml:"format"`
	Division    int              `yaml:"division"`
	TotalTicks  int64            `yaml:"total_ticks"`
	TotalEvents int              `yaml:"total_events"`
	Duration    string           `yaml:"duration"`
	SongTime    float64          `yaml:"song_time"`
	TempoMap    []tempoChange    `yaml:"tempo_map,omitempty"`
	Tracks      []trackInfo      `yaml:"tracks"`
	Checkpoints []checkpointInfo `yaml:"checkpoints,omitempty"`
}

func summarize(p *player.Player, name string, withEvents bool, every int64) (*summary, error) {
	s := &summary{
		File:        name,
		Size:        p.FileSize(),
		Format:      p.Format(),
		Division:    p.Division(),
		TotalTicks:  p.TotalTicks(),
		TotalEvents: p.TotalEvents(),
		Duration:    p.Duration().String(),
		SongTime:    p.SongTime(),
	}
	for _, c := range p.TempoMap() {
		s.TempoMap = append(s.TempoMap, tempoChange{Tick: c.Tick, BPM: c.BPM})
	}
	instruments := p.Instruments()
	for n, evs := range p.Events() {
		t := trackInfo{
			Number: n + 1,
			Bytes:  p.TrackSize(n),
			Events: len(evs),
		}
		for _, prog := range instruments[n] {
			t.Instruments = append(t.Instruments, int(prog))
		}
		if len(evs) > 0 {
			t.Ticks = evs[len(evs)-1].Tick
		}
		for _, ev := range evs {
			if ev.Kind == decoder.KindMeta && ev.MetaType == decoder.MetaTrackName && t.Name == "" {
				t.Name, _ = ev.Text()
			}
			if withEvents {
				t.EventList = append(t.EventList, describe(ev))
			}
		}
		s.Tracks = append(s.Tracks, t)
	}
	if every > 0 {
		for tick := int64(0); tick <= s.TotalTicks; tick += every {
			cp, err := p.Checkpoint(tick)
			if err != nil {
				return nil, fmt.Errorf("checkpoint at %d: %w", tick, err)
			}
			info := checkpointInfo{Tick: cp.Tick, BPM: cp.Tempo}
			for _, st := range cp.Tracks {
				info.Cursors = append(info.Cursors, st.Cursor)
				info.Status = append(info.Status, fmt.Sprintf("%02X", st.Status))
			}
			s.Checkpoints = append(s.Checkpoints, info)
		}
	}
	return s, nil
}

func describe(ev decoder.Event) eventInfo {
	info := eventInfo{
		Tick: ev.Tick,
		Name: ev.Name(),
	}
	if ev.Kind.IsChannel() {
		ch := ev.Channel
		info.Channel = &ch
	}
	if text, ok := ev.Text(); ok {
		info.Text = text
	} else if len(ev.Data) > 0 {
		info.Data = fmt.Sprintf("% X", ev.Data)
	}
	return info
}

func writeSummary(w io.Writer, s *summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2) // Match yq.
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

func Main() (err error) {
	if *i == "" {
		return fmt.Errorf("no input file given; use -i")
	}
	dir, name := filepath.Split(*i)
	if dir == "" {
		dir = "."
	}
	data, err := file.ReadMIDI(os.DirFS(dir), name, *passphrase)
	if err != nil {
		return fmt.Errorf("could not read input: %w", err)
	}
	p := player.New(&player.Options{ManualTick: true})
	if err := p.Load(data); err != nil {
		return fmt.Errorf("could not load %v: %w", *i, err)
	}
	s, err := summarize(p, *i, *events, *checkpointEvery)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if *o != "" {
		f, createErr := os.Create(*o)
		if createErr != nil {
			return fmt.Errorf("could not create %v: %w", *o, createErr)
		}
		defer func() {
			closeErr := f.Close()
			if closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		w = f
	}
	return writeSummary(w, s)
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Version())
		return
	}
	err := Main()
	if err != nil {
		log.Printf("Exiting due to: %v.", err)
		os.Exit(1)
	}
}
