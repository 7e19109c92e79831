package entity

import "time"

type OAuthLink struct {
	ID                uint64
	Provider          string
	ProviderSubjectID string
	MemberID          uint64
	CreatedAt         time.Time
}
