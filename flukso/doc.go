// Package flukso implements discovery of Flukso base units and their kube peripherals.
//
// A Sequencer listens to the retained configuration documents every unit publishes under /device/{id}/config/{flx,kube,sensor}
// for a fixed window, accumulates them in a ConfigStore, and then runs a Classifier over every sensor definition. The
// resulting Descriptors say how each channel should be exposed: as a numeric sensor, as a binary sensor, or not at all.
package flukso
