package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type cacheEntry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*cacheEntry{}

	dotenvOnce sync.Once
)

type loadOptions struct {
	prefix   string
	envFiles []string
}

// Option configures Load.
type Option func(*loadOptions)

// WithPrefix prepends prefix to every variable name of the struct.
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) { o.prefix = prefix }
}

// WithEnvFiles overrides the dotenv files read before the first parse.
// Only the first Load call in the process honours it.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) { o.envFiles = files }
}

// Load parses T from the environment. Each (type, prefix) pair is parsed once;
// later calls return the cached copy, including a cached parse error.
func Load[T any](opts ...Option) (T, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	dotenvOnce.Do(func() {
		// a missing .env file is the normal case outside local development
		_ = godotenv.Load(o.envFiles...)
	})

	key := typeKey[T]() + "|" + o.prefix

	cacheMu.Lock()
	entry, ok := cache[key]
	if !ok {
		entry = &cacheEntry{}
		cache[key] = entry
	}
	cacheMu.Unlock()

	entry.once.Do(func() {
		var v T
		if err := env.ParseWithOptions(&v, env.Options{Prefix: o.prefix}); err != nil {
			entry.err = errors.Join(ErrParsingConfig, err)
			return
		}
		entry.value = v
	})

	var zero T
	if entry.err != nil {
		return zero, entry.err
	}
	v, ok := entry.value.(T)
	if !ok {
		return zero, ErrConfigNotLoaded
	}
	return v, nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](opts ...Option) T {
	v, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("config: load %s: %v", typeKey[T](), err))
	}
	return v
}

func typeKey[T any]() string {
	return reflect.TypeFor[T]().String()
}
