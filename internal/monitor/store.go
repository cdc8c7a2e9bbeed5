package monitor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"

	"RoboFlock/internal/model"
)

var telemetryBucket = []byte("telemetry")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("monitor: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("monitor: CBOR decoder initialization failed: " + err.Error())
	}
}

// Store records telemetry in BoltDB: one nested bucket per robot, keyed by
// the big-endian controller tick, values CBOR encoded.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("[monitor] failed to create %s: %w", filepath.Dir(path), err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[monitor] failed to open BoltDB: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(telemetryBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func tickKey(tick uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, tick)
	return k
}

// Put stores one record; a record with the same robot and tick is replaced.
func (s *Store) Put(t model.Telemetry) error {
	if t.Robot == "" {
		return errors.New("telemetry without robot name")
	}
	v, err := encMode.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(telemetryBucket).CreateBucketIfNotExists([]byte(t.Robot))
		if err != nil {
			return err
		}
		return b.Put(tickKey(t.Tick), v)
	})
}

// History returns up to limit of the robot's most recent records, oldest
// first. limit <= 0 returns everything.
func (s *Store) History(robot string, limit int) ([]model.Telemetry, error) {
	var out []model.Telemetry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(telemetryBucket).Bucket([]byte(robot))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) == limit {
				break
			}
			var t model.Telemetry
			if err := decMode.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Robots lists every robot with recorded telemetry.
func (s *Store) Robots() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(telemetryBucket).ForEachBucket(func(k []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}
