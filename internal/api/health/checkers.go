package health

import (
	"context"
	"fmt"
)

// Pinger is implemented by storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker checks that the alert storage backend is reachable.
type StorageChecker struct {
	name   string
	pinger Pinger
}

// NewStorageChecker creates a checker reported under name (the backend).
func NewStorageChecker(name string, p Pinger) *StorageChecker {
	return &StorageChecker{name: name, pinger: p}
}

// Name returns the checker name.
func (c *StorageChecker) Name() string {
	return "storage_" + c.name
}

// Check pings the backend.
func (c *StorageChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("storage not initialized")
	}
	return c.pinger.Ping(ctx)
}

// FuncChecker adapts a function to Checker.
type FuncChecker struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

// Name returns the checker name.
func (c FuncChecker) Name() string {
	return c.CheckName
}

// Check runs the function.
func (c FuncChecker) Check(ctx context.Context) error {
	return c.Fn(ctx)
}
