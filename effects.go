package notify

import (
	"context"
	"log/slog"
	"sync"
)

// PermissionState is the user's answer to showing desktop notifications.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// Permission reports and requests desktop notification permission.
type Permission interface {
	State() PermissionState
	Request(ctx context.Context) (PermissionState, error)
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title, body string) error
}

// Sounder plays the audio cue for a new notification.
type Sounder interface {
	Play() error
}

// VisibilityFunc reports whether the application is in the foreground.
type VisibilityFunc func() bool

// PermissionVar is an in-memory Permission. Request asks Prompt once the
// state is default; a nil Prompt grants.
type PermissionVar struct {
	Prompt func(ctx context.Context) (bool, error)

	mu    sync.Mutex
	state PermissionState
}

// NewPermissionVar creates a permission in the given state.
func NewPermissionVar(state PermissionState) *PermissionVar {
	return &PermissionVar{state: state}
}

func (p *PermissionVar) State() PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == "" {
		return PermissionDefault
	}
	return p.state
}

func (p *PermissionVar) Request(ctx context.Context) (PermissionState, error) {
	if s := p.State(); s != PermissionDefault {
		return s, nil
	}
	granted := true
	if p.Prompt != nil {
		ok, err := p.Prompt(ctx)
		if err != nil {
			return PermissionDefault, err
		}
		granted = ok
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if granted {
		p.state = PermissionGranted
	} else {
		p.state = PermissionDenied
	}
	return p.state, nil
}

// EffectsConfig configures the side-effect dispatcher. Any backend may be
// nil.
type EffectsConfig struct {
	Permission Permission
	Notifier   Notifier
	Sounder    Sounder
	// Visible, when set, suppresses desktop popups while the application is
	// in the foreground.
	Visible VisibilityFunc
	Logger  *slog.Logger
	Metrics *Metrics
}

// Effects runs the user-facing side effects of a new notification. Nothing
// it does can fail the caller or affect the store.
type Effects struct {
	perm     Permission
	notifier Notifier
	sounder  Sounder
	visible  VisibilityFunc
	log      *slog.Logger
	metrics  *Metrics

	permOnce sync.Once
	wg       sync.WaitGroup
}

func NewEffects(cfg EffectsConfig) *Effects {
	if cfg.Permission == nil {
		cfg.Permission = NewPermissionVar(PermissionDefault)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Effects{
		perm:     cfg.Permission,
		notifier: cfg.Notifier,
		sounder:  cfg.Sounder,
		visible:  cfg.Visible,
		log:      cfg.Logger.With("component", "effects"),
		metrics:  cfg.Metrics,
	}
}

// Permission returns the current permission state.
func (e *Effects) Permission() PermissionState {
	return e.perm.State()
}

// RequestPermission asks for desktop permission if it has not been decided.
// Only the first call has any effect.
func (e *Effects) RequestPermission(ctx context.Context) {
	e.permOnce.Do(func() {
		if e.perm.State() != PermissionDefault {
			return
		}
		state, err := e.perm.Request(ctx)
		if err != nil {
			e.log.Warn("permission request failed", "error", err)
			return
		}
		e.log.Info("notification permission", "state", state)
	})
}

// Dispatch starts the side effects for n and returns immediately.
func (e *Effects) Dispatch(n Notification) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				e.log.Error("side effect panicked", "notification", n.ID, "panic", p)
			}
		}()
		e.display(n)
		e.playSound()
	}()
}

// Wait blocks until all dispatched side effects have finished.
func (e *Effects) Wait() {
	e.wg.Wait()
}

func (e *Effects) display(n Notification) {
	if e.notifier == nil {
		return
	}
	if e.perm.State() != PermissionGranted {
		e.metrics.effect("desktop", "skipped")
		return
	}
	if e.visible != nil && e.visible() {
		e.metrics.effect("desktop", "skipped")
		return
	}
	if err := e.notifier.Notify(n.Title, n.Description); err != nil {
		e.log.Warn("desktop notification failed", "notification", n.ID, "error", err)
		e.metrics.effect("desktop", "error")
		return
	}
	e.metrics.effect("desktop", "ok")
}

func (e *Effects) playSound() {
	if e.sounder == nil {
		return
	}
	if err := e.sounder.Play(); err != nil {
		e.log.Debug("sound failed", "error", err)
		e.metrics.effect("sound", "error")
		return
	}
	e.metrics.effect("sound", "ok")
}
