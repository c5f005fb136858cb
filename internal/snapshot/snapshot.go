// Package snapshot persists the outcome of the last completed discovery, so a later run can retire entities whose
// sensors disappeared while the bridge was down.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	bolt "go.etcd.io/bbolt"

	"github.com/nlowe/flukso-hass/flukso"
	"github.com/nlowe/flukso-hass/hass"
)

var (
	bucketEntities = []byte("entities")
	bucketMeta     = []byte("meta")
	keyCompletedAt = []byte("completed_at")
)

// ErrNoSnapshot is returned by Store.Load when no discovery was saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Record is one exposed entity of a saved discovery.
type Record struct {
	UniqueID    string `json:"unique_id" yaml:"unique_id"`
	DeviceID    string `json:"device" yaml:"device"`
	SensorID    string `json:"sensor" yaml:"sensor"`
	Name        string `json:"name" yaml:"name"`
	Kind        string `json:"kind" yaml:"kind"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Subtype     string `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	DataType    string `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	DeviceClass string `json:"device_class,omitempty" yaml:"device_class,omitempty"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// RecordOf captures d.
func RecordOf(d flukso.Descriptor) Record {
	return Record{
		UniqueID:    d.UniqueID(),
		DeviceID:    d.DeviceID,
		SensorID:    d.SensorID,
		Name:        d.Name,
		Kind:        d.Kind.String(),
		Type:        d.Type,
		Subtype:     d.Subtype,
		DataType:    d.DataType,
		DeviceClass: string(d.DeviceClass),
		Unit:        d.Unit,
	}
}

// Descriptor rebuilds enough of the original descriptor to identify and remove its entity.
func (r Record) Descriptor() flukso.Descriptor {
	kind := flukso.RenderNumeric
	if r.Kind == flukso.RenderBinary.String() {
		kind = flukso.RenderBinary
	}

	return flukso.Descriptor{
		DeviceID: r.DeviceID,
		SensorID: r.SensorID,
		Name:     r.Name,
		Type:     r.Type,
		Subtype:  r.Subtype,
		DataType: r.DataType,
		Unit:     r.Unit,
		Kind:     kind,

		DeviceClass: hass.DeviceClass(r.DeviceClass),
	}
}

// Snapshot is a saved discovery.
type Snapshot struct {
	CompletedAt time.Time `yaml:"completed_at"`
	Entities    []Record  `yaml:"entities"`
}

// Stale returns the entities of s that are not in current, in unique id order.
func (s Snapshot) Stale(current []flukso.Descriptor) []flukso.Descriptor {
	live := make(map[string]struct{}, len(current))
	for _, d := range current {
		live[d.UniqueID()] = struct{}{}
	}

	var result []flukso.Descriptor
	for _, r := range s.Entities {
		if _, ok := live[r.UniqueID]; !ok {
			result = append(result, r.Descriptor())
		}
	}

	return result
}

// Store keeps the last snapshot in a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketEntities, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Save replaces the stored snapshot with the exposed descriptors of a discovery that completed at completedAt.
func (s *Store) Save(completedAt time.Time, descriptors []flukso.Descriptor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntities); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}

		b, err := tx.CreateBucket(bucketEntities)
		if err != nil {
			return err
		}

		for _, d := range descriptors {
			r := RecordOf(d)
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", r.UniqueID, err)
			}

			if err := b.Put([]byte(r.UniqueID), data); err != nil {
				return err
			}
		}

		stamp, err := completedAt.UTC().MarshalText()
		if err != nil {
			return err
		}

		return tx.Bucket(bucketMeta).Put(keyCompletedAt, stamp)
	})
}

// Load returns the stored snapshot with entities in unique id order. It returns ErrNoSnapshot if Save was never
// called.
func (s *Store) Load() (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		stamp := tx.Bucket(bucketMeta).Get(keyCompletedAt)
		if stamp == nil {
			return ErrNoSnapshot
		}

		if err := snap.CompletedAt.UnmarshalText(stamp); err != nil {
			return fmt.Errorf("completed_at: %w", err)
		}

		b := tx.Bucket(bucketEntities)
		snap.Entities = make([]Record, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("entity %s: %w", k, err)
			}

			snap.Entities = append(snap.Entities, r)
			return nil
		})
	})

	if err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
