package persistence

import "github.com/Layr-Labs/signcheck-go/pkg/account"

// IAccountStore keeps synced accounts and the outcome of every signature round-trip.
//
// Implementations must be safe for concurrent use. Load methods return (nil, nil)
// when nothing is stored under the key. After Close every method except Close
// returns an error.
type IAccountStore interface {
	// SaveAccount stores acc under acc.ID, replacing any previous value
	SaveAccount(acc *account.Account) error
	LoadAccount(id string) (*account.Account, error)
	// ListAccounts returns all stored accounts ordered by id
	ListAccounts() ([]*account.Account, error)
	DeleteAccount(id string) error

	SaveVerification(record *VerificationRecord) error
	// ListVerifications returns the records of one run, or of all runs when runID
	// is empty, ordered by timestamp
	ListVerifications(runID string) ([]*VerificationRecord, error)

	Close() error
	HealthCheck() error
}
