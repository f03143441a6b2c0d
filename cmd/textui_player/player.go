package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jeandeaual/go-locale"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/divVerent/midistream/internal/file"
	"github.com/divVerent/midistream/internal/player"
	"github.com/divVerent/midistream/internal/version"
)

var (
	c          = flag.String("c", "midistream.yml", "config file name (YAML)")
	port       = flag.String("port", "", "regular expression to match the preferred output port")
	i          = flag.String("i", "", "file to play (.mid, or .mid.age with a passphrase)")
	passphrase = flag.String("passphrase", "", "passphrase for age encrypted files; overrides the config")
)

// tempoStep is the tempo change per key press, in BPM.
const tempoStep = 5

// skipStep is the skip distance per key press.
const skipStep = 5 * time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	labelStyle = lipgloss.NewStyle().Bold(true)
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	mutedStyle = lipgloss.NewStyle().Faint(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// printer formats numbers for the user's locale.
func printer() *message.Printer {
	loc, err := locale.GetLocale()
	if err != nil {
		log.Printf("Could not detect locale - working without: %v.", err)
		return message.NewPrinter(language.English)
	}
	lang, err := language.Parse(loc)
	if err != nil {
		return message.NewPrinter(language.English)
	}
	return message.NewPrinter(lang)
}

func progressBar(ui *player.UIState, width int) string {
	if !ui.Playing {
		if ui.PlaybackPos > 0 {
			return " ||  " + strings.Repeat("=", width)
		}
		return "[  ] " + strings.Repeat("-", width)
	}
	done := int(ui.ActualPlaybackFraction() * float64(width))
	done = min(max(done, 0), width)
	return " >>  " + barStyle.Render(strings.Repeat("#", done)) + strings.Repeat("=", width-done)
}

func tracksLine(ui *player.UIState) string {
	var parts []string
	for n, enabled := range ui.Tracks {
		s := fmt.Sprintf("%d", n+1)
		if !enabled {
			s = mutedStyle.Render("(" + s + ")")
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func render(p *message.Printer, ui *player.UIState) string {
	ifLine := func(b bool, s string) string {
		if !b {
			return ""
		}
		return s
	}
	tempo := p.Sprintf("%.1f BPM", ui.Tempo)
	if ui.Forced {
		tempo += p.Sprintf(" (file: %.1f BPM)", ui.FileTempo)
	}
	lines := []string{
		"\033[m\033[2J\033[H" + titleStyle.Render("midistream - text mode player"),
		"",
		ifLine(ui.CurrentFile != "", labelStyle.Render("Now Playing:")+" "+ui.CurrentFile),
		ifLine(ui.CurrentMessage != "", labelStyle.Render("Status:")+" "+ui.CurrentMessage),
		"",
		progressBar(ui, 73),
		p.Sprintf("     %v / %v", ui.ActualPlaybackPos().Round(time.Second), ui.PlaybackLen.Round(time.Second)),
		"",
		ifLine(ui.Tempo != 0, labelStyle.Render("Tempo:")+" "+tempo),
		ifLine(len(ui.Tracks) != 0, labelStyle.Render("Tracks:")+" "+tracksLine(ui)),
		"",
		ifLine(ui.Err != nil, errStyle.Render("Error:")+fmt.Sprintf(" %v", ui.Err)),
		"",
		mutedStyle.Render("space pause  s stop  +/- tempo  0 file tempo  ,/. skip  1-9 mute  q quit"),
	}
	return strings.Join(lines, "\r\n")
}

// keyCommand maps a key press to a command.
func keyCommand(ui *player.UIState, ch byte) (player.Command, bool) {
	switch ch {
	case ' ':
		return player.Command{TogglePause: true}, true
	case 's':
		return player.Command{Stop: true}, true
	case '+', '=':
		return player.Command{Tempo: ui.Tempo + tempoStep}, true
	case '-', '_':
		t := ui.Tempo - tempoStep
		if t < tempoStep {
			t = tempoStep
		}
		return player.Command{Tempo: t}, true
	case '0':
		return player.Command{ClearTempo: true}, true
	case ',', '<':
		return player.Command{Skip: -skipStep}, true
	case '.', '>':
		return player.Command{Skip: skipStep}, true
	case 'q', 0x03:
		// Ctrl-C in raw mode does not raise SIGINT.
		return player.Command{Quit: true}, true
	}
	if ch >= '1' && ch <= '9' {
		return player.Command{ToggleTrack: int(ch - '0')}, true
	}
	return player.Command{}, false
}

func textModeUI(b *player.Backend) error {
	defer close(b.Commands) // This will invariably cause failure when reading.

	stdinFD := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(stdinFD)
	if err != nil {
		return fmt.Errorf("cannot make terminal raw: %v", err)
	}
	defer term.Restore(stdinFD, oldState)

	stdin := make(chan byte)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				log.Printf("Error reading stdin: %v.", err)
				close(stdin)
				return
			}
			if n == 0 {
				continue
			}
			stdin <- buf[0]
		}
	}()

	p := printer()
	var ui player.UIState
	var ok bool
	for {
		os.Stderr.Write([]byte(render(p, &ui)))

		select {
		case ui, ok = <-b.UIStates:
			if !ok {
				// UI channel was closed.
				return nil
			}
		case ch, ok := <-stdin:
			if !ok {
				return nil
			}
			if cmd, ok := keyCommand(&ui, ch); ok {
				b.Commands <- cmd
			}
		case <-time.After(50 * time.Millisecond):
			// At least 20 fps update.
		}
	}
}

func loadConfig() (*file.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %v", err)
	}
	config, err := file.ReadConfig(os.DirFS(cwd), *c)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("No config file %v - using defaults.", *c)
		return &file.Config{}, nil
	}
	return config, err
}

func Main() error {
	if *i == "" {
		return errors.New("no file to play given; use -i")
	}
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if *passphrase != "" {
		config.Passphrase = *passphrase
	}

	dir, name := filepath.Split(*i)
	if dir == "" {
		dir = "."
	}
	data, err := file.ReadMIDI(os.DirFS(dir), name, config.Passphrase)
	if err != nil {
		return fmt.Errorf("failed to read %v: %w", *i, err)
	}

	outPort, err := player.FindBestOutPort(*port, config.OutputPort)
	if err != nil {
		return fmt.Errorf("could not find MIDI port: %w", err)
	}
	log.Printf("Picked output port: %v.", outPort)

	p := player.New(&player.Options{
		Interval: config.TickInterval(),
	})
	out := player.NewOutput(outPort)
	defer out.Close()
	out.Attach(p)
	if err := p.Load(data); err != nil {
		return fmt.Errorf("failed to load %v: %w", *i, err)
	}
	for _, n := range config.MutedTracks {
		if err := p.DisableTrack(n - 1); err != nil {
			log.Printf("Not muting track %d: %v.", n, err)
		}
	}
	if config.ForcedTempo > 0 {
		if err := p.SetForcedTempo(config.ForcedTempo); err != nil {
			return err
		}
	}

	b := player.NewBackend(&player.BackendOptions{
		Player:    p,
		File:      *i,
		QuitAtEnd: config.QuitAtEnd,
	})

	loopErr := make(chan error, 1)
	go func() {
		err := b.Loop()
		b.Close()
		loopErr <- err
	}()

	err = textModeUI(b)
	if err != nil {
		return err
	}
	return <-loopErr
}

func main() {
	flag.Parse()
	log.Printf("midistream %v.", version.Version())
	err := Main()
	if errors.Is(err, player.SigIntError) {
		os.Exit(127)
	}
	if err != nil && !errors.Is(err, player.QuitError) {
		log.Printf("Exiting due to: %v.", err)
		os.Exit(1)
	}
}
