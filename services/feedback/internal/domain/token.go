package domain

import "time"

// GuestToken is a single-use credential that lets an anonymous guest submit
// one review attributed to StaffID.
type GuestToken struct {
	ID        string     `json:"id"`
	Token     string     `json:"token"`
	StaffID   string     `json:"staffId"`
	Category  Category   `json:"category"`
	IsUsed    bool       `json:"isUsed"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Redeemable reports whether the token can still be consumed at now.
func (t *GuestToken) Redeemable(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}

type IssueTokenRequest struct {
	Category   string `json:"category"`
	GuestEmail string `json:"guestEmail,omitempty"`
}

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	Category  Category  `json:"category"`
	ExpiresAt time.Time `json:"expiresAt"`
	Link      string    `json:"link,omitempty"`
}

type ValidateTokenResponse struct {
	Category Category `json:"category"`
}
