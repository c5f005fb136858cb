package flukso

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nlowe/flukso-hass/log"
	"github.com/nlowe/flukso-hass/mqtt"
)

const (
	// DefaultWindow is how long the Sequencer listens for configuration documents.
	DefaultWindow = 5 * time.Second

	unsubscribeTimeout = 10 * time.Second
)

// State is the discovery phase of a Sequencer. It implements fmt.Stringer and slog.LogValuer.
type State uint8

const (
	// StateIdle is the state before Start.
	StateIdle State = iota
	// StateListening accepts configuration documents until the window closes.
	StateListening
	// StateComplete is terminal. Classification ran and the completion callback was invoked.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

func (s State) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Result is handed to the completion callback once discovery finishes.
type Result struct {
	Numeric []Descriptor
	Binary  []Descriptor
	Ignored []Descriptor

	// Store holds every document received during the window, for diagnostics.
	Store *ConfigStore
}

// Sequencer runs discovery with a fixed delay: it subscribes to DiscoveryTopic, accumulates every configuration
// document it receives in a ConfigStore until the window elapses, then unsubscribes and classifies the whole store
// once. Documents may arrive in any order and may be repeated; the last one received for a device and type wins.
//
// Once started, discovery cannot be cancelled.
type Sequencer struct {
	sub        mqtt.Subscriber
	scheduler  Scheduler
	classifier *Classifier
	window     time.Duration
	onComplete func(Result)

	mu         sync.Mutex
	state      State
	store      *ConfigStore
	subscribed bool
	ctx        context.Context

	done chan struct{}

	log *slog.Logger
}

// NewSequencer constructs an idle Sequencer. onComplete is called exactly once, from the scheduler's goroutine, when
// the window elapses. A window of zero or less uses DefaultWindow.
func NewSequencer(sub mqtt.Subscriber, scheduler Scheduler, classifier *Classifier, window time.Duration, onComplete func(Result)) *Sequencer {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Sequencer{
		sub:        sub,
		scheduler:  scheduler,
		classifier: classifier,
		window:     window,
		onComplete: onComplete,

		store: NewConfigStore(),
		done:  make(chan struct{}),

		log: log.ForComponent("flukso.sequencer"),
	}
}

// State returns the current discovery phase.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Done is closed after the completion callback returned.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// Start subscribes to configuration documents and arms the discovery window. It returns ErrAlreadyStarted if called
// more than once. If the subscription fails the Sequencer returns to StateIdle and Start may be retried.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	// Listening before subscribing: retained documents may be delivered before Subscribe returns. The lock is not
	// held across Subscribe since the bus client may deliver them on the calling goroutine.
	s.state = StateListening
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	s.log.With(log.Topic(DiscoveryTopic), slog.Duration("window", s.window)).Info("Listening for Flukso configuration")
	err := s.sub.Subscribe(ctx, s, mqtt.Subscription{Topic: DiscoveryTopic})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateIdle
		s.store = NewConfigStore()
		return fmt.Errorf("subscribe %s: %w", DiscoveryTopic, err)
	}

	s.subscribed = true
	s.scheduler.AfterFunc(s.window, s.complete)

	return nil
}

// ServeMQTT implements mqtt.Handler for configuration topics. Documents that cannot be parsed are logged and dropped
// without changing any state, as are documents received outside StateListening.
func (s *Sequencer) ServeMQTT(_ mqtt.Writer, topic string, payload []byte) {
	deviceID, docType, err := ParseConfigTopic(topic)
	if err != nil {
		s.log.With(log.Topic(topic), log.Error(err)).Warn("Ignoring message")
		return
	}

	doc, err := DecodeDocument(docType, payload)
	if err != nil {
		s.log.With(log.Device(deviceID), log.Topic(topic), log.Error(err)).Warn("Dropping configuration document")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateListening {
		s.log.With(log.Device(deviceID), log.Topic(topic), slog.Any("state", s.state)).Debug("Discovery not listening, dropping document")
		return
	}

	s.log.With(log.Device(deviceID), slog.String("document", string(docType))).Debug("Storing configuration document")
	s.store.Store(deviceID, doc)
}

func (s *Sequencer) complete() {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}

	s.state = StateComplete
	subscribed := s.subscribed
	ctx := s.ctx
	s.mu.Unlock()

	// The store is no longer written to once the state left StateListening.
	if subscribed {
		unsubscribeCtx, cancel := context.WithTimeout(ctx, unsubscribeTimeout)
		if err := s.sub.Unsubscribe(unsubscribeCtx, DiscoveryTopic); err != nil {
			s.log.With(log.Error(err)).Error("Failed to unsubscribe from configuration topics")
		}
		cancel()
	} else {
		s.log.Error("Discovery window closed without a subscription to remove")
	}

	numeric, binary, ignored := Partition(s.classifier.ClassifyAll(s.store))
	for _, d := range ignored {
		s.log.With(slog.Any("sensor", d)).Debug("Ignoring sensor")
	}

	s.log.With(
		slog.Int("devices", s.store.Len()),
		slog.Int("numeric", len(numeric)),
		slog.Int("binary", len(binary)),
		slog.Int("ignored", len(ignored)),
	).Info("Discovery complete")

	defer close(s.done)
	if s.onComplete != nil {
		s.onComplete(Result{Numeric: numeric, Binary: binary, Ignored: ignored, Store: s.store})
	}
}
