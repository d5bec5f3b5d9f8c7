// Package modelcache persists built models so a process can skip rebuilding
// from the corpus. Every backend stores the same framed entry: a fixed header
// carrying the order range and a CRC32 of the encoded model, then the model
// itself.
package modelcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/pkg/config"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	pkgredis "github.com/jmcgover/ngrambot/pkg/redis"
)

const (
	entryMagic   uint32 = 0x4E47524D // "NGRM"
	entryVersion uint32 = 1
	headerSize          = 40
)

// ErrCorrupt marks an entry that exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt model cache entry")

// Store loads, saves and deletes models by key. Load returns an error wrapping
// apperrors.ErrCacheMiss when nothing is stored under the key. Deleting a
// missing key is not an error.
type Store interface {
	Load(ctx context.Context, key string) (*ngram.Model, error)
	Save(ctx context.Context, key string, m *ngram.Model) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// IsStale reports whether m was built with a lower maximum order than the
// caller needs.
func IsStale(m *ngram.Model, requested int) bool {
	return m.High < requested
}

// KeyFor derives the cache key of a corpus file: its path without extension
// plus "-ngram.model".
func KeyFor(corpusPath string) string {
	return strings.TrimSuffix(corpusPath, filepath.Ext(corpusPath)) + "-ngram.model"
}

type entryHeader struct {
	Magic      uint32
	Version    uint32
	Low        uint32
	High       uint32
	BuiltAt    int64
	PayloadLen uint64
	Checksum   uint32
}

func encodeEntry(m *ngram.Model) ([]byte, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], entryMagic)
	binary.LittleEndian.PutUint32(buf[4:8], entryVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.Low))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(m.High))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.BuiltAt.Unix()))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(payload)))
	binary.LittleEndian.PutUint32(buf[32:36], crc32.ChecksumIEEE(payload))
	copy(buf[headerSize:], payload)
	return buf, nil
}

func decodeHeader(data []byte) (entryHeader, error) {
	if len(data) < headerSize {
		return entryHeader{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	h := entryHeader{
		Magic:      binary.LittleEndian.Uint32(data[0:4]),
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		Low:        binary.LittleEndian.Uint32(data[8:12]),
		High:       binary.LittleEndian.Uint32(data[12:16]),
		BuiltAt:    int64(binary.LittleEndian.Uint64(data[16:24])),
		PayloadLen: binary.LittleEndian.Uint64(data[24:32]),
		Checksum:   binary.LittleEndian.Uint32(data[32:36]),
	}
	if h.Magic != entryMagic {
		return h, fmt.Errorf("%w: bad magic bytes %x", ErrCorrupt, h.Magic)
	}
	if h.Version != entryVersion {
		return h, fmt.Errorf("%w: entry version %d, want %d", ErrCorrupt, h.Version, entryVersion)
	}
	return h, nil
}

func decodeEntry(data []byte) (*ngram.Model, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[headerSize:]
	if uint64(len(payload)) != h.PayloadLen {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(payload), h.PayloadLen)
	}
	if crc32.ChecksumIEEE(payload) != h.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	var m ngram.Model
	if err := m.UnmarshalBinary(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m.Low != int(h.Low) || m.High != int(h.High) {
		return nil, fmt.Errorf("%w: header range [%d, %d] does not match model [%d, %d]", ErrCorrupt, h.Low, h.High, m.Low, m.High)
	}
	return &m, nil
}

// Open builds the store selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case "", "file":
		return NewFileStore(cfg.Cache.Dir), nil
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting model cache redis: %w", err)
		}
		return NewRedisStore(client, cfg.Cache.TTL), nil
	case "sqlite":
		return OpenSQLiteStore(ctx, cfg.SQLite.Path)
	case "none":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", apperrors.ErrInvalidArgument, cfg.Cache.Backend)
	}
}

// NopStore never holds anything; every Load is a miss.
type NopStore struct{}

func (NopStore) Load(context.Context, string) (*ngram.Model, error) {
	return nil, apperrors.ErrCacheMiss
}

func (NopStore) Save(context.Context, string, *ngram.Model) error { return nil }

func (NopStore) Delete(context.Context, string) error { return nil }

func (NopStore) Close() error { return nil }

// builtAt is used by backends that index entries by build time.
func builtAt(m *ngram.Model) time.Time {
	if m.BuiltAt.IsZero() {
		return time.Now().UTC()
	}
	return m.BuiltAt
}
