package domain

import "time"

// User is the read-only profile maintained by the upstream auth system.
type User struct {
	Identity              string
	Email                 string
	Username              string
	ReferralCode          string
	EthereumWalletAddress string
	Blocked               bool
	CreatedAt             time.Time
}
