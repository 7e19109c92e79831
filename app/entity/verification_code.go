package entity

import "time"

type VerificationCode struct {
	Email string
	// Code is the plaintext value handed to the sender. The code store only keeps CodeHash;
	// queued delivery holds Code in the mail task until it runs or the code expires.
	Code      string
	CodeHash  string
	Attempts  int
	Consumed  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c *VerificationCode) Active(now time.Time) bool {
	return !c.Consumed && now.Before(c.ExpiresAt)
}
