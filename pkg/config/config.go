package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for signcheck configuration
const (
	EnvSignCheckRPCURL            = "SIGNCHECK_RPC_URL"
	EnvSignCheckCurrency          = "SIGNCHECK_CURRENCY"
	EnvSignCheckChainID           = "SIGNCHECK_CHAIN_ID"
	EnvSignCheckDeviceID          = "SIGNCHECK_DEVICE_ID"
	EnvSignCheckTransport         = "SIGNCHECK_TRANSPORT"
	EnvSignCheckSpeculosAddress   = "SIGNCHECK_SPECULOS_ADDRESS"
	EnvSignCheckSignerType        = "SIGNCHECK_SIGNER_TYPE"
	EnvSignCheckPrivateKey        = "SIGNCHECK_PRIVATE_KEY"
	EnvSignCheckWeb3SignerURL     = "SIGNCHECK_WEB3SIGNER_URL"
	EnvSignCheckWeb3SignerAddress = "SIGNCHECK_WEB3SIGNER_ADDRESS"
	EnvSignCheckWeb3SignerPubKey  = "SIGNCHECK_WEB3SIGNER_PUBLIC_KEY"
	EnvSignCheckAWSKMSKeyID       = "SIGNCHECK_AWS_KMS_KEY_ID"
	EnvSignCheckAWSRegion         = "SIGNCHECK_AWS_REGION"
	EnvSignCheckPersistenceType   = "SIGNCHECK_PERSISTENCE_TYPE"
	EnvSignCheckDataPath          = "SIGNCHECK_DATA_PATH"
	EnvSignCheckRedisAddress      = "SIGNCHECK_REDIS_ADDRESS"
	EnvSignCheckRedisPassword     = "SIGNCHECK_REDIS_PASSWORD"
	EnvSignCheckRedisDB           = "SIGNCHECK_REDIS_DB"
	EnvSignCheckSignDelay         = "SIGNCHECK_SIGN_DELAY"
	EnvSignCheckScanLimit         = "SIGNCHECK_SCAN_LIMIT"
	EnvSignCheckDerivationModes   = "SIGNCHECK_DERIVATION_MODES"
	EnvSignCheckVerbose           = "SIGNCHECK_VERBOSE"
)

const (
	DefaultRpcUrl          = "http://localhost:8545"
	DefaultCurrencyID      = "ethereum"
	DefaultDataPath        = "./dbdata"
	DefaultSpeculosAddress = "127.0.0.1:9999"
	DefaultSignDelay       = 1 * time.Second
	DefaultScanLimit       = 10
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumHolesky ChainId = 17000
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumHolesky ChainName = "holesky"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumHolesky: ChainName_EthereumHolesky,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumHolesky: ChainId_EthereumHolesky,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// IsEthereum reports whether the chain id is an Ethereum L1 (or a local fork of one)
func IsEthereum(chainId ChainId) bool {
	_, ok := ChainIdToName[chainId]
	return ok
}

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_EthereumHolesky,
		ChainId_EthereumAnvil,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (holesky), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumHolesky, ChainId_EthereumAnvil)
}

type SignerType string

const (
	SignerTypeLedger     SignerType = "ledger"
	SignerTypeWeb3Signer SignerType = "web3signer"
	SignerTypePrivateKey SignerType = "privateKey"
	SignerTypeAWSKMS     SignerType = "awsKms"
)

var supportedSignerTypes = []string{
	string(SignerTypeLedger),
	string(SignerTypeWeb3Signer),
	string(SignerTypePrivateKey),
	string(SignerTypeAWSKMS),
}

type TransportType string

const (
	TransportTypeHID TransportType = "hid"
	TransportTypeTCP TransportType = "tcp"
)

type PersistenceType string

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

var supportedPersistenceTypes = []string{
	string(PersistenceTypeMemory),
	string(PersistenceTypeBadger),
	string(PersistenceTypeRedis),
}

type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	CACert      string `json:"caCert" yaml:"caCert"`
	Cert        string `json:"cert" yaml:"cert"`
	Key         string `json:"key" yaml:"key"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
	PublicKey   string `json:"publicKey" yaml:"publicKey"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if rsc.FromAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("fromAddress"), "fromAddress is required"))
	} else if !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fromAddress"), rsc.FromAddress, "must be a hex address"))
	}
	if rsc.PublicKey == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("publicKey"), "publicKey is required"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type AWSKMSSignerConfig struct {
	KeyId  string `json:"keyId" yaml:"keyId"`
	Region string `json:"region" yaml:"region"`
}

// SignerConfig selects the signing backend and carries its settings
type SignerConfig struct {
	Type         SignerType          `json:"type" yaml:"type"`
	PrivateKey   string              `json:"privateKey,omitempty" yaml:"privateKey"`
	RemoteSigner *RemoteSignerConfig `json:"remoteSigner,omitempty" yaml:"remoteSigner"`
	AWSKMS       *AWSKMSSignerConfig `json:"awsKms,omitempty" yaml:"awsKms"`
}

func (sc *SignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch sc.Type {
	case SignerTypeLedger:
	case SignerTypePrivateKey:
		key := strings.TrimPrefix(sc.PrivateKey, "0x")
		if key == "" {
			allErrors = append(allErrors, field.Required(path.Child("privateKey"), "privateKey is required for the privateKey signer"))
		} else if len(key) != 64 {
			allErrors = append(allErrors, field.Invalid(path.Child("privateKey"), "<redacted>",
				fmt.Sprintf("must be 32 bytes (64 hex chars), got %d chars", len(key))))
		}
	case SignerTypeWeb3Signer:
		if sc.RemoteSigner == nil {
			allErrors = append(allErrors, field.Required(path.Child("remoteSigner"), "remoteSigner is required for the web3signer signer"))
		} else if err := sc.RemoteSigner.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(path.Child("remoteSigner"), sc.RemoteSigner.FromAddress, err.Error()))
		}
	case SignerTypeAWSKMS:
		if sc.AWSKMS == nil || sc.AWSKMS.KeyId == "" {
			allErrors = append(allErrors, field.Required(path.Child("awsKms", "keyId"), "keyId is required for the awsKms signer"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), sc.Type, supportedSignerTypes))
	}
	return allErrors
}

// PersistenceConfig selects where scanned accounts and verification records are kept
type PersistenceConfig struct {
	Type           PersistenceType `json:"type" yaml:"type"`
	DataPath       string          `json:"dataPath" yaml:"dataPath"`
	RedisAddress   string          `json:"redisAddress" yaml:"redisAddress"`
	RedisPassword  string          `json:"redisPassword" yaml:"redisPassword"`
	RedisDB        int             `json:"redisDb" yaml:"redisDb"`
	RedisKeyPrefix string          `json:"redisKeyPrefix" yaml:"redisKeyPrefix"`
}

func (pc *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch pc.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if pc.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if pc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redisAddress is required for redis persistence"))
		}
		if pc.RedisDB < 0 || pc.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDb"), pc.RedisDB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type, supportedPersistenceTypes))
	}
	return allErrors
}

// SignCheckConfig represents the complete configuration for a signing round-trip run
type SignCheckConfig struct {
	CurrencyID string    `json:"currency_id"`
	ChainID    ChainId   `json:"chain_id"` // 0 means "use the currency's chain id"
	ChainName  ChainName `json:"chain_name"`
	RpcUrl     string    `json:"rpc_url"`

	// Device selection
	DeviceID        string        `json:"device_id"`
	Transport       TransportType `json:"transport"`
	SpeculosAddress string        `json:"speculos_address"`

	Signer      *SignerConfig      `json:"signer"`
	Persistence *PersistenceConfig `json:"persistence"`

	// Fixed pause before each signing request so the device can settle
	SignDelay       time.Duration `json:"sign_delay"`
	ScanLimit       int           `json:"scan_limit"`
	DerivationModes []string      `json:"derivation_modes"`

	Debug bool `json:"debug"`
}

// Validate validates the configuration and fills in derived fields
func (c *SignCheckConfig) Validate() error {
	var allErrors field.ErrorList

	if c.CurrencyID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("currencyId"), "currency id cannot be empty"))
	}
	if c.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpc url cannot be empty"))
	}

	if c.ChainID != 0 {
		chainName, exists := ChainIdToName[c.ChainID]
		if !exists {
			allErrors = append(allErrors, field.Invalid(field.NewPath("chainId"), c.ChainID,
				fmt.Sprintf("unsupported chain ID. Supported: %s", GetSupportedChainIDsString())))
		} else {
			c.ChainName = chainName
		}
	}

	switch c.Transport {
	case TransportTypeHID:
	case TransportTypeTCP:
		if c.SpeculosAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("speculosAddress"), "speculos address is required for the tcp transport"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("transport"), c.Transport,
			[]string{string(TransportTypeHID), string(TransportTypeTCP)}))
	}

	if c.Signer == nil {
		allErrors = append(allErrors, field.Required(field.NewPath("signer"), "signer config is required"))
	} else {
		allErrors = append(allErrors, c.Signer.validate(field.NewPath("signer"))...)
	}

	if c.Persistence == nil {
		allErrors = append(allErrors, field.Required(field.NewPath("persistence"), "persistence config is required"))
	} else {
		allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)
	}

	if c.SignDelay < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("signDelay"), c.SignDelay.String(), "must not be negative"))
	}
	if c.ScanLimit < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("scanLimit"), c.ScanLimit, "must be at least 1"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
