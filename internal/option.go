package internal

import (
	"io"
	"net"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	listener  net.Listener
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput sends the JSON log stream to w instead of stdout.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithListener serves on l instead of listening on the configured port.
func WithListener(l net.Listener) Option {
	return func(a *application) {
		a.listener = l
	}
}
