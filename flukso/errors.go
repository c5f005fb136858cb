package flukso

import "errors"

var (
	// ErrMalformedPayload is returned when a configuration document or a live value cannot be parsed.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrIncompleteDeviceConfig is returned by Classifier.ClassifyDevice when a device has not published all of its
	// configuration documents.
	ErrIncompleteDeviceConfig = errors.New("incomplete device config")
	// ErrUnknownDocument is returned for configuration topics naming a document other than flx, kube or sensor.
	ErrUnknownDocument = errors.New("unknown config document")
	// ErrUnexpectedTopic is returned by ParseConfigTopic for topics that are not Flukso configuration topics.
	ErrUnexpectedTopic = errors.New("unexpected topic")
	// ErrAlreadyStarted is returned by Sequencer.Start when discovery was already started.
	ErrAlreadyStarted = errors.New("discovery already started")
)
