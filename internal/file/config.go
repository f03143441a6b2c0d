package file

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the player settings.
type Config struct {
	// OutputPort is the name of the preferred MIDI output port.
	OutputPort string `yaml:"output_port,omitempty"`

	// TickIntervalMS is the scheduling interval in milliseconds.
	TickIntervalMS int `yaml:"tick_interval_ms,omitempty"`

	// ForcedTempo, if set, plays at this tempo in BPM.
	ForcedTempo float64 `yaml:"forced_tempo,omitempty"`

	// MutedTracks lists the 1-based numbers of tracks not to play.
	MutedTracks []int `yaml:"muted_tracks,omitempty"`

	// Passphrase decrypts .age files.
	Passphrase string `yaml:"passphrase,omitempty"`

	// QuitAtEnd quits the player when the file ends.
	QuitAtEnd bool `yaml:"quit_at_end,omitempty"`
}

// TickInterval returns the scheduling interval, or 0 for the default.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func ReadConfig(fsys fs.FS, configFile string) (*Config, error) {
	f, err := fsys.Open(configFile)
	if err != nil {
		return nil, fmt.Errorf("could not open: %w", err)
	}
	defer f.Close()
	var config Config
	err = yaml.NewDecoder(f).Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("could not decode: %w", err)
	}
	if config.TickIntervalMS < 0 {
		return nil, fmt.Errorf("invalid tick_interval_ms %d", config.TickIntervalMS)
	}
	if config.ForcedTempo < 0 {
		return nil, fmt.Errorf("invalid forced_tempo %v", config.ForcedTempo)
	}
	return &config, nil
}

func WriteConfig(configFile string, config *Config) (err error) {
	f, err := os.Create(configFile)
	if err != nil {
		return fmt.Errorf("could not recreate %v: %w", configFile, err)
	}
	defer func() {
		closeErr := f.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2) // Match yq.
	return enc.Encode(config)
}
