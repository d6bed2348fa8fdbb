package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Layr-Labs/signcheck-go/pkg/transport"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	claEthereum byte = 0xe0

	insGetAddress       byte = 0x02
	insGetConfiguration byte = 0x06
	insSignPersonal     byte = 0x08
	insSignEIP712Hashed byte = 0x0c

	p1First       byte = 0x00
	p1More        byte = 0x80
	p1NoDisplay   byte = 0x00
	p1Display     byte = 0x01
	p2NoChainCode byte = 0x00

	maxChunkSize = 255
	maxPathDepth = 10
)

type AppConfiguration struct {
	ArbitraryDataEnabled       bool   `json:"arbitraryDataEnabled"`
	ERC20ProvisioningNecessary bool   `json:"erc20ProvisioningNecessary"`
	Version                    string `json:"version"`
}

type AddressResult struct {
	PublicKey []byte
	Address   common.Address
}

// Client speaks the Ledger Ethereum app protocol over an open device
type Client struct {
	device transport.Device
	logger *zap.Logger
}

func NewClient(device transport.Device, l *zap.Logger) *Client {
	return &Client{device: device, logger: l}
}

// serializePath encodes a derivation path as depth(1) followed by big endian components
func serializePath(path accounts.DerivationPath) ([]byte, error) {
	if len(path) == 0 || len(path) > maxPathDepth {
		return nil, fmt.Errorf("derivation path must have between 1 and %d components, got %d", maxPathDepth, len(path))
	}
	out := make([]byte, 1+4*len(path))
	out[0] = byte(len(path))
	for i, component := range path {
		binary.BigEndian.PutUint32(out[1+4*i:], component)
	}
	return out, nil
}

func (c *Client) exchange(ctx context.Context, ins, p1, p2 byte, data []byte) ([]byte, error) {
	if len(data) > maxChunkSize {
		return nil, fmt.Errorf("apdu payload too large: %d bytes", len(data))
	}
	apdu := make([]byte, 0, 5+len(data))
	apdu = append(apdu, claEthereum, ins, p1, p2, byte(len(data)))
	apdu = append(apdu, data...)

	reply, err := c.device.Exchange(ctx, apdu)
	if err != nil {
		return nil, err
	}
	if len(reply) < 2 {
		return nil, fmt.Errorf("device reply too short: %d bytes", len(reply))
	}
	sw := binary.BigEndian.Uint16(reply[len(reply)-2:])
	if sw != swOK {
		c.logger.Sugar().Debugw("Device returned error status", "ins", fmt.Sprintf("0x%02x", ins), "status", fmt.Sprintf("0x%04x", sw))
		return nil, &StatusError{Code: sw}
	}
	return reply[:len(reply)-2], nil
}

func (c *Client) GetAppConfiguration(ctx context.Context) (*AppConfiguration, error) {
	reply, err := c.exchange(ctx, insGetConfiguration, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get app configuration: %w", err)
	}
	if len(reply) < 4 {
		return nil, fmt.Errorf("app configuration reply too short: %d bytes", len(reply))
	}
	return &AppConfiguration{
		ArbitraryDataEnabled:       reply[0]&0x01 != 0,
		ERC20ProvisioningNecessary: reply[0]&0x02 != 0,
		Version:                    fmt.Sprintf("%d.%d.%d", reply[1], reply[2], reply[3]),
	}, nil
}

// GetAddress returns the public key and address at path, optionally asking the user to confirm it on screen
func (c *Client) GetAddress(ctx context.Context, path accounts.DerivationPath, display bool) (*AddressResult, error) {
	data, err := serializePath(path)
	if err != nil {
		return nil, err
	}
	p1 := p1NoDisplay
	if display {
		p1 = p1Display
	}
	reply, err := c.exchange(ctx, insGetAddress, p1, p2NoChainCode, data)
	if err != nil {
		return nil, fmt.Errorf("failed to get address for %s: %w", path, err)
	}

	// pubkeyLen(1) pubkey addressLen(1) address(ascii hex)
	if len(reply) < 1 || len(reply) < 1+int(reply[0])+1 {
		return nil, fmt.Errorf("malformed address reply")
	}
	pubKey := reply[1 : 1+int(reply[0])]
	rest := reply[1+int(reply[0]):]
	if len(rest) < 1+int(rest[0]) {
		return nil, fmt.Errorf("malformed address reply")
	}
	hexAddr := string(rest[1 : 1+int(rest[0])])
	if !strings.HasPrefix(hexAddr, "0x") {
		hexAddr = "0x" + hexAddr
	}
	if !common.IsHexAddress(hexAddr) {
		return nil, fmt.Errorf("device returned an invalid address %q", hexAddr)
	}
	address := common.HexToAddress(hexAddr)

	pub, err := crypto.UnmarshalPubkey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("device returned an invalid public key: %w", err)
	}
	if derived := crypto.PubkeyToAddress(*pub); derived != address {
		return nil, fmt.Errorf("device address %s does not match its public key (%s)", address.Hex(), derived.Hex())
	}
	return &AddressResult{PublicKey: pubKey, Address: address}, nil
}

// DeriveAddress returns the address at path without prompting the user
func (c *Client) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	res, err := c.GetAddress(ctx, path, false)
	if err != nil {
		return common.Address{}, err
	}
	return res.Address, nil
}

// SignPersonalMessage signs msg with the personal_sign prefix. The user must confirm on the device.
func (c *Client) SignPersonalMessage(ctx context.Context, path accounts.DerivationPath, msg []byte) ([]byte, error) {
	pathData, err := serializePath(path)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(pathData)+4+len(msg))
	payload = append(payload, pathData...)
	payload = binary.BigEndian.AppendUint32(payload, uint32(len(msg)))
	payload = append(payload, msg...)

	var reply []byte
	p1 := p1First
	for len(payload) > 0 {
		chunk := payload
		if len(chunk) > maxChunkSize {
			chunk = chunk[:maxChunkSize]
		}
		payload = payload[len(chunk):]

		reply, err = c.exchange(ctx, insSignPersonal, p1, 0, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to sign personal message: %w", err)
		}
		p1 = p1More
	}
	return decodeSignature(reply)
}

// SignEIP712HashedMessage signs an EIP-712 message given as domain separator and struct hash
func (c *Client) SignEIP712HashedMessage(ctx context.Context, path accounts.DerivationPath, domainSeparator, messageHash common.Hash) ([]byte, error) {
	pathData, err := serializePath(path)
	if err != nil {
		return nil, err
	}
	data := bytes.Join([][]byte{pathData, domainSeparator.Bytes(), messageHash.Bytes()}, nil)

	reply, err := c.exchange(ctx, insSignEIP712Hashed, 0, 0, data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	return decodeSignature(reply)
}

// decodeSignature turns the device's v(1) r(32) s(32) into r || s || v with v in {27, 28}
func decodeSignature(reply []byte) ([]byte, error) {
	if len(reply) != crypto.SignatureLength {
		return nil, fmt.Errorf("unexpected signature reply length: %d", len(reply))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, reply[1:])
	v := reply[0]
	if v < 27 {
		v += 27
	}
	sig[64] = v
	return sig, nil
}
