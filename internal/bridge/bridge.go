// Package bridge runs flukso-hass: discovery on the Flukso bus, then entity publication on the Home Assistant bus until
// the context is cancelled.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nlowe/flukso-hass/discovery"
	"github.com/nlowe/flukso-hass/entity"
	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/hass"
	"github.com/nlowe/flukso-hass/internal/snapshot"
	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
)

const shutdownTimeout = 10 * time.Second

// HomeAssistantConn is the Home Assistant side connection. It is written to and subscribed for Home Assistant's
// status topic.
type HomeAssistantConn interface {
	mqtt.Writer
	mqtt.Subscriber
}

// SnapshotStore persists completed discoveries. See snapshot.Store.
type SnapshotStore interface {
	Load() (snapshot.Snapshot, error)
	Save(completedAt time.Time, descriptors []flukso.Descriptor) error
}

// Options configures a Bridge.
type Options struct {
	DiscoveryWindow time.Duration
	IgnoreSensors   []string

	DiscoveryPrefix string
	Entities        entity.Config

	// Scheduler runs the discovery window and entity timers. Defaults to flukso.SystemScheduler.
	Scheduler flukso.Scheduler

	// Snapshots is optional. Without it entities removed while the bridge was down are not retired.
	Snapshots SnapshotStore

	// Now defaults to time.Now.
	Now func() time.Time
}

// Bridge connects the discovery pipeline to Home Assistant.
type Bridge struct {
	source mqtt.Subscriber
	hass   HomeAssistantConn
	opts   Options

	sequencer *flukso.Sequencer
	registrar *entity.DiscoveryRegistrar
	publisher *entity.Publisher

	mu      sync.Mutex
	ctx     context.Context
	stopped bool

	published chan struct{}

	log *slog.Logger
}

// New constructs a Bridge reading from source and publishing to ha.
func New(source mqtt.Subscriber, ha HomeAssistantConn, opts Options) *Bridge {
	if opts.Scheduler == nil {
		opts.Scheduler = flukso.SystemScheduler
	}

	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = discovery.DefaultPrefix
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Bridge{
		source: source,
		hass:   ha,
		opts:   opts,

		published: make(chan struct{}),

		log: log.ForComponent("bridge"),
	}

	b.registrar = entity.NewDiscoveryRegistrar(ha, opts.DiscoveryPrefix)
	b.publisher = entity.NewPublisher(source, ha, b.registrar, opts.Scheduler, opts.Entities)
	b.sequencer = flukso.NewSequencer(source, opts.Scheduler, flukso.NewClassifier(opts.IgnoreSensors), opts.DiscoveryWindow, b.onDiscovery)

	return b
}

// Publisher exposes the entities created by the bridge.
func (b *Bridge) Publisher() *entity.Publisher {
	return b.publisher
}

// Published is closed once the entities of the completed discovery were published.
func (b *Bridge) Published() <-chan struct{} {
	return b.published
}

// Run starts discovery and blocks until ctx is done. Entities are then marked unavailable and unsubscribed.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	status := discovery.HomeAssistantAvailability(b.opts.DiscoveryPrefix)
	status.Watch(func(availability hass.Availability) {
		b.log.With(slog.Any("availability", availability)).Info("Home Assistant state changed")
		if availability == hass.Available {
			// Watchers run on the bus callback and must not block.
			go b.refresh(ctx)
		}
	})

	if err := b.hass.Subscribe(ctx, status, status.Subscription("")); err != nil {
		return fmt.Errorf("subscribe to home assistant status: %w", err)
	}

	if err := b.sequencer.Start(ctx); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	<-ctx.Done()
	b.log.Info("Shutting down")

	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return errors.Join(
		b.hass.Unsubscribe(shutdownCtx, status.FullyQualifiedTopic("")),
		b.publisher.Shutdown(shutdownCtx),
	)
}

// refresh re-sends discovery payloads and entity state after Home Assistant restarted.
func (b *Bridge) refresh(ctx context.Context) {
	if err := errors.Join(b.registrar.Rediscover(ctx), b.publisher.Republish(ctx)); err != nil {
		b.log.With(log.Error(err)).Error("Failed to refresh Home Assistant")
	}
}

func (b *Bridge) onDiscovery(result flukso.Result) {
	defer close(b.published)

	b.mu.Lock()
	ctx, stopped := b.ctx, b.stopped
	b.mu.Unlock()

	if stopped {
		b.log.Warn("Discovery completed after shutdown, not publishing")
		return
	}

	if err := b.publisher.Publish(ctx, result.Numeric, result.Binary); err != nil {
		b.log.With(log.Error(err)).Error("Failed to publish some entities")
	}

	// Retire after publishing so devices that still have entities keep their discovery payload.
	exposed := append(append([]flukso.Descriptor{}, result.Numeric...), result.Binary...)
	b.retire(ctx, exposed)

	if b.opts.Snapshots == nil {
		return
	}

	if err := b.opts.Snapshots.Save(b.opts.Now(), exposed); err != nil {
		b.log.With(log.Error(err)).Error("Failed to save discovery snapshot")
	}
}

// retire removes the entities of the previous snapshot that this discovery no longer exposes.
func (b *Bridge) retire(ctx context.Context, exposed []flukso.Descriptor) {
	if b.opts.Snapshots == nil {
		return
	}

	previous, err := b.opts.Snapshots.Load()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		b.log.Debug("No previous discovery snapshot")
		return
	} else if err != nil {
		b.log.With(log.Error(err)).Error("Failed to load discovery snapshot")
		return
	}

	stale := previous.Stale(exposed)
	if len(stale) == 0 {
		return
	}

	b.log.With(slog.Int("stale", len(stale)), slog.Time("previous", previous.CompletedAt)).Info("Retiring entities from previous discovery")
	if err := b.registrar.Retire(ctx, stale); err != nil {
		b.log.With(log.Error(err)).Error("Failed to retire entities")
	}
}
