package models

import "time"

// Client is a billing entity holding a credit balance.
type Client struct {
	ID            ClientID  `json:"id"             validate:"required"`
	Name          string    `json:"name"           validate:"required"`
	CreditBalance int64     `json:"credit_balance" validate:"min=0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanAfford reports whether the balance covers the given cost.
func (c *Client) CanAfford(cost int64) bool {
	return c.CreditBalance >= cost
}
