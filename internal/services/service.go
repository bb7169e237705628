package services

import (
	"context"
	"sync/atomic"
)

// Names of the managed services, also used as log components.
const (
	NameContent     = "content"
	NameHealth      = "health"
	NameTimezone    = "timezone"
	NameSync        = "sync"
	NameMaintenance = "maintenance"
	NameWarming     = "warming"
	NameMigration   = "migration"
)

// Service is a cache aspect with an explicit lifecycle. Init must be called
// before any other method; Dispose releases timers and marks the service
// unusable until the next Init.
type Service interface {
	Name() string
	Init(ctx context.Context) error
	Dispose(ctx context.Context) error
}

// initFlag tracks whether a service is usable.
type initFlag struct{ on atomic.Bool }

func (f *initFlag) guard() error {
	if !f.on.Load() {
		return ErrNotInitialized
	}
	return nil
}

// Initialized reports whether Init has completed and Dispose has not run since.
func (f *initFlag) Initialized() bool { return f.on.Load() }
