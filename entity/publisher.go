package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
)

// Config holds the options of a Publisher.
type Config struct {
	// TopicPrefix is the Home Assistant side prefix entity topics are written under. Defaults to DefaultTopicPrefix.
	TopicPrefix string

	// OffDelay is how long presence entities stay ON after a message. Defaults to DefaultOffDelay.
	OffDelay time.Duration
}

// Publisher turns classified descriptors into live entities. It reads values from the Flukso bus through source,
// writes entity topics to the Home Assistant bus through sink and registers every entity with registrar.
type Publisher struct {
	source    mqtt.Subscriber
	sink      mqtt.Writer
	registrar Registrar
	scheduler flukso.Scheduler
	cfg       Config

	mu       sync.Mutex
	entities map[string]Entity
	order    []string

	log *slog.Logger
}

// NewPublisher constructs a Publisher with no entities.
func NewPublisher(source mqtt.Subscriber, sink mqtt.Writer, registrar Registrar, scheduler flukso.Scheduler, cfg Config) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}

	if cfg.OffDelay <= 0 {
		cfg.OffDelay = DefaultOffDelay
	}

	return &Publisher{
		source:    source,
		sink:      sink,
		registrar: registrar,
		scheduler: scheduler,
		cfg:       cfg,

		entities: map[string]Entity{},

		log: log.ForComponent("entity.publisher"),
	}
}

// Publish creates one entity for every descriptor, registers it, marks it available and subscribes it to its Flukso
// topic. Descriptors whose unique id is already published are skipped. A failure for one entity does not prevent the
// others from being published; all failures are joined in the returned error. A failed entity is marked unavailable,
// withdrawn from the registrar and may be published again later.
func (p *Publisher) Publish(ctx context.Context, numeric, binary []flukso.Descriptor) error {
	var errs []error

	for _, d := range numeric {
		errs = append(errs, p.publish(ctx, d, func() Entity {
			return NewNumeric(ctx, d, p.sink, p.cfg.TopicPrefix)
		}))
	}

	for _, d := range binary {
		errs = append(errs, p.publish(ctx, d, func() Entity {
			return NewBinary(ctx, d, p.sink, p.cfg.TopicPrefix, p.scheduler, p.cfg.OffDelay)
		}))
	}

	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, d flukso.Descriptor, build func() Entity) error {
	id := d.UniqueID()
	l := p.log.With(slog.Any("entity", d))

	p.mu.Lock()
	if _, exists := p.entities[id]; exists {
		p.mu.Unlock()
		l.Debug("Entity already published")
		return nil
	}

	e := build()
	p.entities[id] = e
	p.mu.Unlock()

	err := p.register(ctx, e)
	if err != nil {
		p.mu.Lock()
		delete(p.entities, id)
		p.mu.Unlock()

		l.With(log.Error(err)).Error("Failed to publish entity")

		// Withdraw whatever part of the entity already reached Home Assistant.
		if rollback := errors.Join(e.Close(ctx), p.registrar.Unregister(ctx, e)); rollback != nil {
			l.With(log.Error(rollback)).Warn("Failed to withdraw entity")
			err = errors.Join(err, rollback)
		}

		return fmt.Errorf("publish %s: %w", id, err)
	}

	p.mu.Lock()
	p.order = append(p.order, id)
	p.mu.Unlock()

	l.Info("Published entity")
	return nil
}

func (p *Publisher) register(ctx context.Context, e Entity) error {
	if err := p.registrar.RegisterEntity(ctx, e); err != nil {
		return err
	}

	if err := e.Announce(ctx); err != nil {
		return fmt.Errorf("announce: %w", err)
	}

	sub := e.Subscription()
	if err := p.source.Subscribe(ctx, e, sub); err != nil {
		return fmt.Errorf("subscribe %s: %w", sub.Topic, err)
	}

	return nil
}

// Entity returns the published entity with the given unique id.
func (p *Publisher) Entity(uniqueID string) (Entity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entities[uniqueID]
	return e, ok
}

// Entities returns every published entity in publication order.
func (p *Publisher) Entities() []Entity {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]Entity, 0, len(p.order))
	for _, id := range p.order {
		result = append(result, p.entities[id])
	}

	return result
}

// Republish re-sends availability, attributes and state of every entity. Call it when Home Assistant comes back
// online.
func (p *Publisher) Republish(ctx context.Context) error {
	entities := p.Entities()
	p.log.With(slog.Int("entities", len(entities))).Info("Republishing entity state")

	var errs []error
	for _, e := range entities {
		if err := e.Republish(ctx); err != nil {
			errs = append(errs, fmt.Errorf("republish %s: %w", e.Descriptor().UniqueID(), err))
		}
	}

	return errors.Join(errs...)
}

// Shutdown unsubscribes every entity from the Flukso bus, then closes them, marking each one unavailable.
func (p *Publisher) Shutdown(ctx context.Context) error {
	entities := p.Entities()
	if len(entities) == 0 {
		return nil
	}

	p.log.With(slog.Int("entities", len(entities))).Info("Shutting down entities")

	topics := make([]string, 0, len(entities))
	for _, e := range entities {
		topics = append(topics, e.Subscription().Topic)
	}

	var errs []error
	if err := p.source.Unsubscribe(ctx, topics...); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	}

	for _, e := range entities {
		if err := e.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.Descriptor().UniqueID(), err))
		}
	}

	return errors.Join(errs...)
}
