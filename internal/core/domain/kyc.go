package domain

// KYCStatus is the verification state reported by the KYC provider.
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusVerified KYCStatus = "verified"
	KYCStatusRejected KYCStatus = "rejected"
)

// IsComplete returns true when the customer passed verification.
func (s KYCStatus) IsComplete() bool {
	return s == KYCStatusVerified
}
