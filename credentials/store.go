package credentials

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FileStore is a persisted credential store backed by a config file (YAML,
// JSON, TOML or .env). Keys are matched case-insensitively. The file is
// re-read when it changes on disk; readers always see a complete snapshot.
type FileStore struct {
	v        *viper.Viper
	logger   *zap.Logger
	snapshot atomic.Pointer[map[string]string]
	onChange func()
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *zap.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// OnChange registers a callback run after each successful reload, typically
// Resolver.Invalidate.
func OnChange(fn func()) FileStoreOption {
	return func(s *FileStore) {
		s.onChange = fn
	}
}

// OpenFileStore reads path and starts watching it.
func OpenFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{
		v:      viper.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.v.SetConfigFile(path)
	if err := s.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read credential store %s: %w", path, err)
	}
	s.snapshot.Store(s.read())

	s.v.OnConfigChange(func(e fsnotify.Event) {
		if err := s.v.ReadInConfig(); err != nil {
			s.logger.Warn("credential store reload failed", zap.String("path", e.Name), zap.Error(err))
			return
		}
		s.snapshot.Store(s.read())
		s.logger.Info("credential store reloaded", zap.String("path", e.Name))
		if s.onChange != nil {
			s.onChange()
		}
	})
	s.v.WatchConfig()

	return s, nil
}

func (s *FileStore) read() *map[string]string {
	values := make(map[string]string)
	for _, key := range s.v.AllKeys() {
		if v := strings.TrimSpace(s.v.GetString(key)); v != "" {
			values[strings.ToLower(key)] = v
		}
	}
	return &values
}

// Get returns the stored secret for key.
func (s *FileStore) Get(key string) (string, bool) {
	values := s.snapshot.Load()
	if values == nil {
		return "", false
	}
	v, ok := (*values)[strings.ToLower(key)]
	return v, ok
}
