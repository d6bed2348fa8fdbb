package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	TCPModuleID = "tcp"

	defaultExchangeTimeout = 30 * time.Second

	statusWordLength = 2
	maxResponseSize  = 64 * 1024
)

var errFraming = errors.New("invalid apdu frame")

// SpeculosDevice speaks the Speculos emulator APDU protocol. Requests are
// length(4) || apdu; responses are length(4) || data || status word(2).
type SpeculosDevice struct {
	address string
	conn    net.Conn
	logger  *zap.Logger
}

func DialSpeculos(ctx context.Context, address string, l *zap.Logger) (*SpeculosDevice, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to speculos at %s: %w", address, err)
	}
	return &SpeculosDevice{address: address, conn: conn, logger: l}, nil
}

func (d *SpeculosDevice) Exchange(ctx context.Context, apdu []byte) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultExchangeTimeout)
	}
	if err := d.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	req := make([]byte, 4+len(apdu))
	binary.BigEndian.PutUint32(req, uint32(len(apdu)))
	copy(req[4:], apdu)
	d.logger.Sugar().Debugw("Sending APDU", "address", d.address, "apdu", fmt.Sprintf("%x", apdu))
	if _, err := d.conn.Write(req); err != nil {
		return nil, fmt.Errorf("failed to write apdu: %w", err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(d.conn, header); err != nil {
		return nil, fmt.Errorf("failed to read response length: %w", err)
	}
	size := binary.BigEndian.Uint32(header)
	if size > maxResponseSize {
		return nil, fmt.Errorf("%w: response length %d exceeds %d bytes", errFraming, size, maxResponseSize)
	}
	reply := make([]byte, int(size)+statusWordLength)
	if _, err := io.ReadFull(d.conn, reply); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	d.logger.Sugar().Debugw("Received APDU", "address", d.address, "reply", fmt.Sprintf("%x", reply))
	return reply, nil
}

func (d *SpeculosDevice) Close() error {
	return d.conn.Close()
}

// NewSpeculosModule handles every device id by connecting to the emulator at address
func NewSpeculosModule(address string, l *zap.Logger) Module {
	return Module{
		ID: TCPModuleID,
		Open: func(ctx context.Context, deviceID string) (Device, error) {
			return DialSpeculos(ctx, address, l)
		},
		Disconnect: func(string) error { return nil },
	}
}
