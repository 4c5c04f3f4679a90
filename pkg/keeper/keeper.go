package keeper

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ManouchehrRasoulli/rfskeeper/pkg/hotbuffer"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/logger"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/metrics"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrRead  = errors.New("failed to read file")
	ErrParse = errors.New("failed to parse file")
)

// LoadFunc turns the raw content of a file into a fully built value. The
// returned value is published as is and must not be modified afterwards.
type LoadFunc[T any] func(data []byte) (*T, error)

// Meta describes the file content behind the current value.
type Meta struct {
	Name       string
	Size       int64
	ModifyTime time.Time
	Digest     [blake2b.Size256]byte
	Version    uint64
}

func (m Meta) String() string {
	return fmt.Sprintf("file meta :: file-name: %s, size: %d, modified_at: %v, version: %d, digest: %s",
		m.Name, m.Size, m.ModifyTime.String(), m.Version, hex.EncodeToString(m.Digest[:8]))
}

type Option func(o *options)

type options struct {
	logger        *logger.ColorLogger
	metrics       *metrics.Collector
	skipUnchanged bool
	onPublish     func(Meta)
}

func WithLogger(lg *log.Logger) Option {
	return func(o *options) {
		o.logger = logger.NewColorLogger(lg)
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithSkipUnchanged makes Load keep the current value when the file content
// has the same digest as the one last published.
func WithSkipUnchanged(skip bool) Option {
	return func(o *options) {
		o.skipUnchanged = skip
	}
}

// WithOnPublish calls fn after every successful publish, still under the load
// lock.
func WithOnPublish(fn func(Meta)) Option {
	return func(o *options) {
		o.onPublish = fn
	}
}

// Keeper binds one file and its parse function to a hot buffer.
type Keeper[T any] struct {
	path   string
	load   LoadFunc[T]
	buffer *hotbuffer.Buffer[T]
	options

	// mutex serializes Load, rwM guards meta.
	mutex  sync.Mutex
	rwM    sync.RWMutex
	meta   Meta
	loaded bool
}

// New creates a Keeper and loads path once, failing if that load fails.
func New[T any](path string, load LoadFunc[T], opts ...Option) (*Keeper[T], error) {
	k := newKeeper(path, load, nil, opts)
	if err := k.Load(); err != nil {
		return nil, err
	}
	return k, nil
}

// NewWithDefault creates a Keeper serving def until path loads successfully.
// A failed initial load is only reported.
func NewWithDefault[T any](path string, load LoadFunc[T], def *T, opts ...Option) *Keeper[T] {
	k := newKeeper(path, load, def, opts)
	if err := k.Load(); err != nil {
		k.logger.Warnf("keeper :: serving default value for %s, initial load failed: %v", path, err)
	}
	return k
}

func newKeeper[T any](path string, load LoadFunc[T], def *T, opts []Option) *Keeper[T] {
	k := &Keeper[T]{
		path:   path,
		load:   load,
		buffer: hotbuffer.New(def),
		options: options{
			logger: logger.NewColorLogger(nil),
		},
		meta: Meta{Name: path},
	}
	for _, op := range opts {
		op(&k.options)
	}
	return k
}

func (k *Keeper[T]) Path() string {
	return k.path
}

// GetBuffer returns the current value. It never blocks on Load.
func (k *Keeper[T]) GetBuffer() *T {
	return k.buffer.Get()
}

func (k *Keeper[T]) Snapshot() hotbuffer.Snapshot[T] {
	return k.buffer.Load()
}

func (k *Keeper[T]) Meta() Meta {
	k.rwM.RLock()
	defer k.rwM.RUnlock()

	return k.meta
}

// Load reads and parses the file and publishes the result. Concurrent calls
// run one after another. On failure the current value stays in place.
func (k *Keeper[T]) Load() error {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	start := time.Now()

	data, info, err := k.read()
	if err != nil {
		k.metrics.Reload(k.path, metrics.ResultReadError, time.Since(start))
		k.logger.Errorf("keeper :: got error %v on reading %s", err, k.path)
		return errors.Join(ErrRead, err)
	}

	digest := blake2b.Sum256(data)
	if k.skipUnchanged && k.loaded && digest == k.Meta().Digest {
		k.metrics.Reload(k.path, metrics.ResultUnchanged, time.Since(start))
		return nil
	}

	v, err := k.load(data)
	if err == nil && v == nil {
		err = errors.New("load function returned no value")
	}
	if err != nil {
		k.metrics.Reload(k.path, metrics.ResultParseError, time.Since(start))
		k.logger.Errorf("keeper :: got error %v on parsing %s, keeping version %d", err, k.path, k.buffer.Version())
		return errors.Join(ErrParse, err)
	}

	version, err := k.buffer.Publish(v)
	if err != nil {
		return errors.Join(ErrParse, err)
	}

	meta := Meta{
		Name:       k.path,
		Size:       info.Size(),
		ModifyTime: info.ModTime(),
		Digest:     digest,
		Version:    version,
	}
	k.rwM.Lock()
	k.meta = meta
	k.rwM.Unlock()
	k.loaded = true

	k.metrics.Reload(k.path, metrics.ResultSuccess, time.Since(start))
	k.metrics.SetVersion(k.path, version)
	k.logger.Infof("keeper :: published %s", meta)

	if k.onPublish != nil {
		k.onPublish(meta)
	}
	return nil
}

func (k *Keeper[T]) read() ([]byte, os.FileInfo, error) {
	f, err := os.Open(k.path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%s is a directory", k.path)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}
