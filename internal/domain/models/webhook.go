package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString accepts JSON strings, numbers and booleans. TradingView
// templates send chat ids and prices either quoted or bare.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// WebhookRequest is the inbound alert body as sent by the charting platform.
type WebhookRequest struct {
	Ticker    string     `json:"ticker" validate:"required,max=64"`
	Signal    string     `json:"signal" validate:"required,max=256"`
	Price     FlexString `json:"price,omitempty"`
	Strategy  string     `json:"strategy,omitempty" validate:"max=64"`
	ChatID    FlexString `json:"chat_id,omitempty"`
	Timeframe string     `json:"timeframe,omitempty" validate:"max=16"`
	Time      FlexString `json:"time,omitempty"`
	Secret    string     `json:"secret,omitempty"`
}
