package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEffectsDispatch(t *testing.T) {
	t.Run("granted and hidden shows popup and sound", func(t *testing.T) {
		notifier := &recordingNotifier{}
		sounder := &recordingSounder{}
		metrics := NewMetrics(prometheus.NewRegistry())
		e := NewEffects(EffectsConfig{
			Permission: NewPermissionVar(PermissionGranted),
			Notifier:   notifier,
			Sounder:    sounder,
			Visible:    func() bool { return false },
			Logger:     quietLogger(),
			Metrics:    metrics,
		})

		e.Dispatch(testNotification("n1"))
		e.Wait()

		if notifier.count() != 1 || sounder.count() != 1 {
			t.Fatalf("expected popup and sound, got %d and %d", notifier.count(), sounder.count())
		}
		if notifier.shown[0] != "Hi" {
			t.Fatalf("expected title Hi, got %q", notifier.shown[0])
		}
		if v := testutil.ToFloat64(metrics.effects.WithLabelValues("desktop", "ok")); v != 1 {
			t.Fatalf("expected desktop ok=1, got %v", v)
		}
	})

	t.Run("denied still plays sound", func(t *testing.T) {
		notifier := &recordingNotifier{}
		sounder := &recordingSounder{}
		e := NewEffects(EffectsConfig{
			Permission: NewPermissionVar(PermissionDenied),
			Notifier:   notifier,
			Sounder:    sounder,
			Logger:     quietLogger(),
		})

		e.Dispatch(testNotification("n1"))
		e.Wait()

		if notifier.count() != 0 {
			t.Fatalf("expected no popup, got %d", notifier.count())
		}
		if sounder.count() != 1 {
			t.Fatalf("expected sound, got %d", sounder.count())
		}
	})

	t.Run("default permission shows nothing", func(t *testing.T) {
		notifier := &recordingNotifier{}
		e := NewEffects(EffectsConfig{Notifier: notifier, Logger: quietLogger()})
		e.Dispatch(testNotification("n1"))
		e.Wait()
		if notifier.count() != 0 {
			t.Fatalf("expected no popup, got %d", notifier.count())
		}
	})

	t.Run("visible app suppresses popup", func(t *testing.T) {
		notifier := &recordingNotifier{}
		sounder := &recordingSounder{}
		metrics := NewMetrics(prometheus.NewRegistry())
		e := NewEffects(EffectsConfig{
			Permission: NewPermissionVar(PermissionGranted),
			Notifier:   notifier,
			Sounder:    sounder,
			Visible:    func() bool { return true },
			Logger:     quietLogger(),
			Metrics:    metrics,
		})

		e.Dispatch(testNotification("n1"))
		e.Wait()

		if notifier.count() != 0 || sounder.count() != 1 {
			t.Fatalf("expected sound only, got popup=%d sound=%d", notifier.count(), sounder.count())
		}
		if v := testutil.ToFloat64(metrics.effects.WithLabelValues("desktop", "skipped")); v != 1 {
			t.Fatalf("expected desktop skipped=1, got %v", v)
		}
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("no display")}
		sounder := &recordingSounder{err: errors.New("autoplay blocked")}
		metrics := NewMetrics(prometheus.NewRegistry())
		e := NewEffects(EffectsConfig{
			Permission: NewPermissionVar(PermissionGranted),
			Notifier:   notifier,
			Sounder:    sounder,
			Logger:     quietLogger(),
			Metrics:    metrics,
		})

		e.Dispatch(testNotification("n1"))
		e.Wait()

		if v := testutil.ToFloat64(metrics.effects.WithLabelValues("desktop", "error")); v != 1 {
			t.Fatalf("expected desktop error=1, got %v", v)
		}
		if v := testutil.ToFloat64(metrics.effects.WithLabelValues("sound", "error")); v != 1 {
			t.Fatalf("expected sound error=1, got %v", v)
		}
	})

	t.Run("panic is contained", func(t *testing.T) {
		e := NewEffects(EffectsConfig{
			Permission: NewPermissionVar(PermissionGranted),
			Notifier:   panicNotifier{},
			Logger:     quietLogger(),
		})
		e.Dispatch(testNotification("n1"))
		e.Wait()
	})

	t.Run("does not block the caller", func(t *testing.T) {
		release := make(chan struct{})
		e := NewEffects(EffectsConfig{
			Permission: NewPermissionVar(PermissionGranted),
			Notifier:   blockingNotifier(release),
			Logger:     quietLogger(),
		})
		e.Dispatch(testNotification("n1"))
		close(release)
		e.Wait()
	})
}

type panicNotifier struct{}

func (panicNotifier) Notify(title, body string) error { panic("boom") }

type blockingNotifier chan struct{}

func (b blockingNotifier) Notify(title, body string) error {
	<-b
	return nil
}

func TestRequestPermission(t *testing.T) {
	t.Run("prompts once", func(t *testing.T) {
		var prompts int32
		perm := NewPermissionVar(PermissionDefault)
		perm.Prompt = func(ctx context.Context) (bool, error) {
			atomic.AddInt32(&prompts, 1)
			return true, nil
		}
		e := NewEffects(EffectsConfig{Permission: perm, Logger: quietLogger()})

		e.RequestPermission(context.Background())
		e.RequestPermission(context.Background())

		if atomic.LoadInt32(&prompts) != 1 {
			t.Fatalf("expected 1 prompt, got %d", prompts)
		}
		if e.Permission() != PermissionGranted {
			t.Fatalf("expected granted, got %s", e.Permission())
		}
	})

	t.Run("decided permission is not asked", func(t *testing.T) {
		perm := NewPermissionVar(PermissionDenied)
		perm.Prompt = func(ctx context.Context) (bool, error) {
			t.Fatal("prompt must not run")
			return false, nil
		}
		e := NewEffects(EffectsConfig{Permission: perm, Logger: quietLogger()})
		e.RequestPermission(context.Background())
		if e.Permission() != PermissionDenied {
			t.Fatalf("expected denied, got %s", e.Permission())
		}
	})

	t.Run("no retroactive display", func(t *testing.T) {
		notifier := &recordingNotifier{}
		perm := NewPermissionVar(PermissionDefault)
		e := NewEffects(EffectsConfig{Permission: perm, Notifier: notifier, Logger: quietLogger()})

		e.Dispatch(testNotification("before"))
		e.Wait()
		e.RequestPermission(context.Background())
		e.Wait()
		if notifier.count() != 0 {
			t.Fatalf("notification from before the grant was shown: %d", notifier.count())
		}

		e.Dispatch(testNotification("after"))
		e.Wait()
		if notifier.count() != 1 || notifier.shown[0] != "Hi" {
			t.Fatalf("expected one popup after the grant, got %v", notifier.shown)
		}
	})

	t.Run("refusal denies", func(t *testing.T) {
		perm := NewPermissionVar(PermissionDefault)
		perm.Prompt = func(ctx context.Context) (bool, error) { return false, nil }
		state, err := perm.Request(context.Background())
		if err != nil || state != PermissionDenied {
			t.Fatalf("expected denied, got %s (%v)", state, err)
		}
	})

	t.Run("prompt error leaves default", func(t *testing.T) {
		perm := NewPermissionVar(PermissionDefault)
		perm.Prompt = func(ctx context.Context) (bool, error) { return false, errors.New("dismissed") }
		e := NewEffects(EffectsConfig{Permission: perm, Logger: quietLogger()})
		e.RequestPermission(context.Background())
		if e.Permission() != PermissionDefault {
			t.Fatalf("expected default, got %s", e.Permission())
		}
	})
}
