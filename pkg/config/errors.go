package config

import "errors"

var (
	ErrParsingConfig   = errors.New("config: failed to parse environment")
	ErrConfigNotLoaded = errors.New("config: configuration has not been loaded")
)
