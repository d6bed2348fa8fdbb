package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	ledger_go "github.com/zondax/ledger-go"
	"go.uber.org/zap"
)

const HIDModuleID = "hid"

var statusOK = []byte{0x90, 0x00}

// HIDDevice talks to a Ledger over USB HID. ledger-go strips the status word
// from replies and turns failures into errors; Exchange puts it back so the
// Device contract holds for every transport.
type HIDDevice struct {
	id     string
	device ledger_go.LedgerDevice
	logger *zap.Logger
}

func newHIDDevice(id string, device ledger_go.LedgerDevice, l *zap.Logger) *HIDDevice {
	return &HIDDevice{id: id, device: device, logger: l}
}

func (d *HIDDevice) Exchange(ctx context.Context, apdu []byte) ([]byte, error) {
	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := d.exchange(apdu)
		done <- result{reply, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("hid exchange on device %s: %w", d.id, ctx.Err())
	case res := <-done:
		return res.reply, res.err
	}
}

func (d *HIDDevice) exchange(apdu []byte) ([]byte, error) {
	d.logger.Sugar().Debugw("Sending APDU", "device", d.id, "apdu", fmt.Sprintf("%x", apdu))

	data, err := d.device.Exchange(apdu)
	reply := append([]byte{}, data...)
	if err != nil {
		sw, ok := statusWordFromError(err)
		if !ok {
			return nil, fmt.Errorf("hid exchange on device %s: %w", d.id, err)
		}
		reply = append(reply, byte(sw>>8), byte(sw))
	} else {
		reply = append(reply, statusOK...)
	}

	d.logger.Sugar().Debugw("Received APDU", "device", d.id, "reply", fmt.Sprintf("%x", reply))
	return reply, nil
}

func (d *HIDDevice) Close() error {
	return d.device.Close()
}

var (
	statusMessagesOnce sync.Once
	statusMessages     map[string]uint16
)

// statusWordFromError recovers the status word from an error returned by
// ledger-go's Exchange. Other errors (io, framing, bad apdu) report false.
func statusWordFromError(err error) (uint16, bool) {
	msg := err.Error()

	var sw uint16
	if _, scanErr := fmt.Sscanf(msg, "Error code: %04x", &sw); scanErr == nil {
		return sw, true
	}

	statusMessagesOnce.Do(func() {
		statusMessages = make(map[string]uint16)
		for code := 0x6000; code < 0x7000; code++ {
			m := ledger_go.ErrorMessage(uint16(code))
			if !strings.HasPrefix(m, "Error code:") {
				statusMessages[m] = uint16(code)
			}
		}
	})
	sw, ok := statusMessages[msg]
	return sw, ok
}

// ListLedgerDevices returns the ids of the connected Ledger devices
func ListLedgerDevices(admin ledger_go.LedgerAdmin) []string {
	count := admin.CountDevices()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, strconv.Itoa(i))
	}
	return ids
}

// NewHIDModule opens Ledger devices by index as listed by ListLedgerDevices.
// An empty device id picks the first device.
func NewHIDModule(admin ledger_go.LedgerAdmin, l *zap.Logger) Module {
	return Module{
		ID: HIDModuleID,
		Open: func(ctx context.Context, deviceID string) (Device, error) {
			index := 0
			if deviceID != "" {
				var err error
				if index, err = strconv.Atoi(deviceID); err != nil || index < 0 {
					return nil, ErrNotHandled
				}
			}
			if admin.CountDevices() <= index {
				if deviceID == "" {
					return nil, fmt.Errorf("no ledger device found")
				}
				return nil, fmt.Errorf("ledger device %d not found", index)
			}

			device, err := admin.Connect(index)
			if err != nil {
				return nil, err
			}
			return newHIDDevice(strconv.Itoa(index), device, l), nil
		},
		Disconnect: func(string) error { return nil },
	}
}
