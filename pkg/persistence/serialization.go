package persistence

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/signcheck-go/pkg/account"
)

// accountJSON carries the balance as a decimal string so values above 2^53 survive
type accountJSON struct {
	account.Account
	Balance string `json:"balance"`
}

func MarshalAccount(acc *account.Account) ([]byte, error) {
	if acc == nil {
		return nil, fmt.Errorf("cannot marshal nil Account")
	}
	aj := accountJSON{Account: acc.Copy()}
	if acc.Balance != nil {
		aj.Balance = acc.Balance.String()
	}
	return json.Marshal(aj)
}

func UnmarshalAccount(data []byte) (*account.Account, error) {
	var aj accountJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Account: %w", err)
	}
	acc := aj.Account
	acc.Balance = nil
	if aj.Balance != "" {
		balance, ok := new(big.Int).SetString(aj.Balance, 10)
		if !ok {
			return nil, fmt.Errorf("invalid account balance %q", aj.Balance)
		}
		acc.Balance = balance
	}
	return &acc, nil
}

func MarshalVerificationRecord(record *VerificationRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil VerificationRecord")
	}
	return json.Marshal(record)
}

func UnmarshalVerificationRecord(data []byte) (*VerificationRecord, error) {
	var record VerificationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal VerificationRecord: %w", err)
	}
	return &record, nil
}
