package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ledger_go "github.com/zondax/ledger-go"
	"go.uber.org/zap/zaptest"
)

type fakeLedgerDevice struct {
	reply  []byte
	err    error
	sent   [][]byte
	closed bool
}

func (d *fakeLedgerDevice) Exchange(command []byte) ([]byte, error) {
	d.sent = append(d.sent, command)
	return d.reply, d.err
}

func (d *fakeLedgerDevice) Close() error {
	d.closed = true
	return nil
}

type fakeLedgerAdmin struct {
	devices []*fakeLedgerDevice
}

func (a *fakeLedgerAdmin) CountDevices() int {
	return len(a.devices)
}

func (a *fakeLedgerAdmin) ListDevices() ([]string, error) {
	return nil, nil
}

func (a *fakeLedgerAdmin) Connect(index int) (ledger_go.LedgerDevice, error) {
	if index >= len(a.devices) {
		return nil, fmt.Errorf("LedgerHID device (idx %d) not found", index)
	}
	return a.devices[index], nil
}

func Test_HIDDevice(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	apdu := []byte{0xe0, 0x06, 0x00, 0x00, 0x00}

	t.Run("Should append the ok status word to a successful reply", func(t *testing.T) {
		dev := &fakeLedgerDevice{reply: []byte{0x01, 0x02}}
		got, err := newHIDDevice("0", dev, l).Exchange(ctx, apdu)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02, 0x90, 0x00}, got)
		assert.Equal(t, [][]byte{apdu}, dev.sent)
	})

	t.Run("Should map a known device error back to its status word", func(t *testing.T) {
		dev := &fakeLedgerDevice{reply: []byte{}, err: errors.New(ledger_go.ErrorMessage(0x6985))}
		got, err := newHIDDevice("0", dev, l).Exchange(ctx, apdu)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x69, 0x85}, got)
	})

	t.Run("Should map an unnamed device error back to its status word", func(t *testing.T) {
		dev := &fakeLedgerDevice{reply: []byte{}, err: errors.New(ledger_go.ErrorMessage(0x5515))}
		got, err := newHIDDevice("0", dev, l).Exchange(ctx, apdu)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x55, 0x15}, got)
	})

	t.Run("Should return transport errors as errors", func(t *testing.T) {
		dev := &fakeLedgerDevice{err: errors.New("hid write failed")}
		_, err := newHIDDevice("0", dev, l).Exchange(ctx, apdu)
		require.ErrorContains(t, err, "hid write failed")
	})
}

func Test_HIDModule(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)

	t.Run("Should open the first device for an empty id and close it", func(t *testing.T) {
		first := &fakeLedgerDevice{}
		admin := &fakeLedgerAdmin{devices: []*fakeLedgerDevice{first, {}}}
		r := NewRegistry(l)
		r.RegisterTransportModule(NewHIDModule(admin, l))

		require.NoError(t, r.WithDevice(ctx, "", func(d Device) error {
			_, err := d.Exchange(ctx, []byte{0xe0, 0x06, 0x00, 0x00, 0x00})
			return err
		}))
		assert.Len(t, first.sent, 1)
		assert.True(t, first.closed)
	})

	t.Run("Should open a device by index", func(t *testing.T) {
		second := &fakeLedgerDevice{}
		admin := &fakeLedgerAdmin{devices: []*fakeLedgerDevice{{}, second}}
		dev, err := NewHIDModule(admin, l).Open(ctx, "1")
		require.NoError(t, err)
		require.NoError(t, dev.Close())
		assert.True(t, second.closed)
	})

	t.Run("Should not handle non numeric ids", func(t *testing.T) {
		_, err := NewHIDModule(&fakeLedgerAdmin{}, l).Open(ctx, "127.0.0.1:9999")
		require.ErrorIs(t, err, ErrNotHandled)
	})

	t.Run("Should fail without devices", func(t *testing.T) {
		_, err := NewHIDModule(&fakeLedgerAdmin{}, l).Open(ctx, "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotHandled)
	})

	t.Run("Should list devices by index", func(t *testing.T) {
		admin := &fakeLedgerAdmin{devices: []*fakeLedgerDevice{{}, {}}}
		assert.Equal(t, []string{"0", "1"}, ListLedgerDevices(admin))
	})
}
