package notify

import (
	"github.com/gen2brain/beeep"
)

const (
	defaultBeepFreq     = 587.0
	defaultBeepDuration = 150
)

// DesktopNotifier shows notifications through the OS notification service.
type DesktopNotifier struct {
	// Icon is a path to an image file; empty uses the system default.
	Icon string
}

func (d DesktopNotifier) Notify(title, body string) error {
	return beeep.Notify(title, body, d.Icon)
}

// Beeper plays a short tone. Zero fields use a default chime.
type Beeper struct {
	Freq     float64
	Duration int // milliseconds
}

func (b Beeper) Play() error {
	freq, dur := b.Freq, b.Duration
	if freq == 0 {
		freq = defaultBeepFreq
	}
	if dur == 0 {
		dur = defaultBeepDuration
	}
	return beeep.Beep(freq, dur)
}

// NewDesktopEffects wires the OS backends into an Effects with the given
// permission. Sound is only played when sound is true.
func NewDesktopEffects(perm Permission, sound bool, cfg EffectsConfig) *Effects {
	cfg.Permission = perm
	cfg.Notifier = DesktopNotifier{}
	if sound {
		cfg.Sounder = Beeper{}
	}
	return NewEffects(cfg)
}
