package persistence

import (
	"fmt"
	"sort"
	"time"

	"github.com/Layr-Labs/signcheck-go/pkg/config"
	"github.com/Layr-Labs/signcheck-go/pkg/message"
	"github.com/ethereum/go-ethereum/common"
)

// ErrClosed is returned by every store operation after Close
var ErrClosed = fmt.Errorf("persistence layer is closed")

// VerificationRecord is the persisted outcome of a single sign + verify round-trip
type VerificationRecord struct {
	// ID is unique per record; RunID groups the records of one scenario run
	ID          string         `json:"id"`
	RunID       string         `json:"runId"`
	AccountID   string         `json:"accountId"`
	Kind        message.Kind   `json:"kind"`
	MessageHash common.Hash    `json:"messageHash"`
	Signature   string         `json:"signature"`
	Address     common.Address `json:"address"`
	ChainID     config.ChainId `json:"chainId"`
	Valid       bool           `json:"valid"`
	Method      string         `json:"method"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Key returns the storage key of the record, sortable by run and time
func (r *VerificationRecord) Key() string {
	return fmt.Sprintf("%s:%020d:%s", r.RunID, r.Timestamp.UnixNano(), r.ID)
}

// SortVerifications orders records by timestamp, then id
func SortVerifications(records []*VerificationRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID < records[j].ID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
