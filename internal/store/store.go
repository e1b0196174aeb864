// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package store implements the durable, append-only position log on
// BadgerDB. Samples are immutable once written; a successful Append is
// visible to immediately following queries.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/metrics"
	"github.com/tomtom215/trackplane/internal/models"
)

// MaxQueryLimit bounds QueryRecent page size.
const MaxQueryLimit = 100

// Errors
var (
	// ErrStoreClosed is returned when the store has been closed.
	ErrStoreClosed = fmt.Errorf("position store is closed")

	// ErrEmptyDeviceID is returned when a device ID is empty.
	ErrEmptyDeviceID = fmt.Errorf("device ID cannot be empty")

	// ErrStorageFailure is returned when the durability layer is
	// unavailable or an operation exceeds its bounded timeout.
	ErrStorageFailure = fmt.Errorf("storage failure")
)

// Stats contains store counters for monitoring.
type Stats struct {
	TotalAppends int64
	TotalQueries int64
	DBSizeBytes  int64
}

// PositionStore is the append-only durable log of device position
// samples. All methods are safe for concurrent use.
type PositionStore struct {
	db  *badger.DB
	cfg config.StoreConfig

	// seq breaks key ordering ties between appends that land in the
	// same nanosecond.
	seq atomic.Uint64

	totalAppends atomic.Int64
	totalQueries atomic.Int64

	mu     sync.RWMutex
	closed bool
}

const keyPrefix = "pos:"

// Open creates (or reopens) a PositionStore at the configured path.
func Open(cfg config.StoreConfig) (*PositionStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Compression = options.Snappy
	opts.InMemory = cfg.InMemory
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	// Badger's own logger is noisy; everything relevant is logged here.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &PositionStore{
		db:  db,
		cfg: cfg,
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("in_memory", cfg.InMemory).
		Msg("Position store opened")
	return s, nil
}

// deviceKeyPrefix returns the key prefix holding all samples for one
// device. The device ID is hex-encoded so opaque IDs can never collide
// with the key separators.
func deviceKeyPrefix(deviceID string) []byte {
	return []byte(keyPrefix + hex.EncodeToString([]byte(deviceID)) + ":")
}

// sampleKey builds the full key for one sample. Timestamps and sequence
// numbers are stored inverted and zero-padded so a forward prefix scan
// yields samples in descending observed_at order.
func sampleKey(deviceID string, observedAt time.Time, seq uint64) []byte {
	invTS := uint64(math.MaxInt64 - observedAt.UnixNano())
	invSeq := math.MaxUint64 - seq
	key := deviceKeyPrefix(deviceID)
	key = append(key, []byte(fmt.Sprintf("%020d:%020d", invTS, invSeq))...)
	return key
}

// Append durably persists one sample and returns its stored form.
// ObservedAt is assigned here when absent. The write is bounded by the
// configured op timeout; exceeding it fails with ErrStorageFailure
// without any guarantee about whether the write landed.
func (s *PositionStore) Append(ctx context.Context, sample models.PositionSample) (models.StoredSample, error) {
	start := time.Now()
	var opErr error
	defer func() {
		metrics.RecordStoreOp("append", time.Since(start), opErr)
	}()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		opErr = ErrStoreClosed
		return models.StoredSample{}, ErrStoreClosed
	}
	s.mu.RUnlock()

	if sample.DeviceID == "" {
		opErr = ErrEmptyDeviceID
		return models.StoredSample{}, ErrEmptyDeviceID
	}

	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = time.Now().UTC()
	}

	stored := models.StoredSample{
		ID:         uuid.New().String(),
		Seq:        s.seq.Add(1),
		DeviceID:   sample.DeviceID,
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		ObservedAt: sample.ObservedAt,
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		opErr = err
		return models.StoredSample{}, fmt.Errorf("marshal sample: %w", err)
	}

	key := sampleKey(stored.DeviceID, stored.ObservedAt, stored.Seq)
	err = s.runBounded(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, data)
		})
	})
	if err != nil {
		opErr = err
		return models.StoredSample{}, err
	}

	s.totalAppends.Add(1)
	metrics.StoreAppendsTotal.Inc()

	return stored, nil
}

// QueryRecent returns up to limit most recent samples for a device,
// descending by observed_at. A device with no samples yields an empty
// slice, not an error. Limits above MaxQueryLimit are clamped; zero or
// negative limits default to MaxQueryLimit.
func (s *PositionStore) QueryRecent(ctx context.Context, deviceID string, limit int) ([]models.StoredSample, error) {
	start := time.Now()
	var opErr error
	defer func() {
		metrics.RecordStoreOp("query_recent", time.Since(start), opErr)
	}()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		opErr = ErrStoreClosed
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	if deviceID == "" {
		opErr = ErrEmptyDeviceID
		return nil, ErrEmptyDeviceID
	}
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	samples := make([]models.StoredSample, 0, limit)
	err := s.runBounded(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = true
			opts.PrefetchSize = limit
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := deviceKeyPrefix(deviceID)
			for it.Seek(prefix); it.ValidForPrefix(prefix) && len(samples) < limit; it.Next() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				var sample models.StoredSample
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &sample)
				})
				if err != nil {
					logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Failed to unmarshal stored sample")
					continue
				}
				samples = append(samples, sample)
			}
			return nil
		})
	})
	if err != nil {
		opErr = err
		return nil, err
	}

	s.totalQueries.Add(1)
	return samples, nil
}

// QueryLatest returns the single most recent sample for a device.
// The boolean result is false when the device has never reported,
// which is an explicit no-data result, not an error.
func (s *PositionStore) QueryLatest(ctx context.Context, deviceID string) (models.StoredSample, bool, error) {
	start := time.Now()
	var opErr error
	defer func() {
		metrics.RecordStoreOp("query_latest", time.Since(start), opErr)
	}()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		opErr = ErrStoreClosed
		return models.StoredSample{}, false, ErrStoreClosed
	}
	s.mu.RUnlock()

	if deviceID == "" {
		opErr = ErrEmptyDeviceID
		return models.StoredSample{}, false, ErrEmptyDeviceID
	}

	var sample models.StoredSample
	found := false
	err := s.runBounded(ctx, func() error {
		return s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = true
			opts.PrefetchSize = 1
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := deviceKeyPrefix(deviceID)
			it.Seek(prefix)
			if !it.ValidForPrefix(prefix) {
				return nil
			}
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sample)
			})
			if err != nil {
				return fmt.Errorf("unmarshal stored sample: %w", err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		opErr = err
		return models.StoredSample{}, false, err
	}

	s.totalQueries.Add(1)
	return sample, found, nil
}

// runBounded executes op with the configured timeout. A timed-out or
// canceled operation fails with ErrStorageFailure; the underlying
// Badger call may still complete in the background.
func (s *PositionStore) runBounded(ctx context.Context, op func() error) error {
	timeout := s.cfg.OpTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		done <- op()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStorageFailure, ctx.Err())
	case <-time.After(timeout):
		return fmt.Errorf("%w: operation timed out after %v", ErrStorageFailure, timeout)
	}
}

// Stats returns current store counters.
func (s *PositionStore) Stats() Stats {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return Stats{}
	}

	lsm, vlog := s.db.Size()
	return Stats{
		TotalAppends: s.totalAppends.Load(),
		TotalQueries: s.totalQueries.Load(),
		DBSizeBytes:  lsm + vlog,
	}
}

// RunGC triggers Badger value log garbage collection. Call periodically
// to reclaim space on long-running deployments.
func (s *PositionStore) RunGC() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	for {
		err := s.db.RunValueLogGC(0.5)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				return nil
			}
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close gracefully shuts down the store. If Badger does not close
// within 30 seconds, Close returns an error rather than hang.
func (s *PositionStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	logging.Info().Msg("Closing position store")

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Position store closed")
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("badgerdb close timeout after 30s")
	}
}
