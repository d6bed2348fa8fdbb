package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNotHandled is returned by a module's Open when the device id belongs to another module
	ErrNotHandled = errors.New("device id not handled by this transport module")
	ErrNoModule   = errors.New("no transport module could open the device")
)

// Device exchanges raw APDUs with a hardware wallet. The returned response
// still carries the trailing two byte status word.
type Device interface {
	Exchange(ctx context.Context, apdu []byte) ([]byte, error)
	Close() error
}

type Module struct {
	ID         string
	Open       func(ctx context.Context, deviceID string) (Device, error)
	Disconnect func(deviceID string) error
}

// Registry holds transport modules in registration order
type Registry struct {
	mu      sync.RWMutex
	modules []Module

	// one device session at a time
	deviceMu sync.Mutex
	logger   *zap.Logger
}

func NewRegistry(l *zap.Logger) *Registry {
	if l == nil {
		l = zap.NewNop()
	}
	return &Registry{logger: l}
}

// RegisterTransportModule adds a module. Registering an id twice replaces the earlier module.
func (r *Registry) RegisterTransportModule(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.modules {
		if existing.ID == m.ID {
			r.modules[i] = m
			return
		}
	}
	r.modules = append(r.modules, m)
}

func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		ids = append(ids, m.ID)
	}
	return ids
}

// Open asks each module in turn to open deviceID
func (r *Registry) Open(ctx context.Context, deviceID string) (Device, Module, error) {
	r.mu.RLock()
	modules := append([]Module(nil), r.modules...)
	r.mu.RUnlock()

	for _, m := range modules {
		dev, err := m.Open(ctx, deviceID)
		if errors.Is(err, ErrNotHandled) {
			continue
		}
		if err != nil {
			return nil, m, fmt.Errorf("transport %s: failed to open device %q: %w", m.ID, deviceID, err)
		}
		r.logger.Sugar().Debugw("Opened device", "module", m.ID, "deviceId", deviceID)
		return dev, m, nil
	}
	return nil, Module{}, fmt.Errorf("%w: %q", ErrNoModule, deviceID)
}

// WithDevice opens deviceID, runs fn and closes the device again. Calls are serialised.
func (r *Registry) WithDevice(ctx context.Context, deviceID string, fn func(Device) error) error {
	r.deviceMu.Lock()
	defer r.deviceMu.Unlock()

	dev, m, err := r.Open(ctx, deviceID)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			r.logger.Sugar().Warnw("Failed to close device", "module", m.ID, "error", err)
		}
		if m.Disconnect != nil {
			if err := m.Disconnect(deviceID); err != nil {
				r.logger.Sugar().Warnw("Failed to disconnect transport", "module", m.ID, "error", err)
			}
		}
	}()

	return fn(dev)
}

var defaultRegistry = NewRegistry(nil)

func RegisterTransportModule(m Module) {
	defaultRegistry.RegisterTransportModule(m)
}

func WithDevice(ctx context.Context, deviceID string, fn func(Device) error) error {
	return defaultRegistry.WithDevice(ctx, deviceID, fn)
}

func DefaultRegistry() *Registry {
	return defaultRegistry
}
