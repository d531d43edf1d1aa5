// Package qrcode renders asset identity payloads as QR images and reads them back.
package qrcode

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotJSON means the scanned text is not an asset code at all.
	ErrNotJSON = errors.New("this QR code is not a valid asset code")
	// ErrMissingFields means the text is JSON but lacks the identifying fields.
	ErrMissingFields = errors.New("this QR code does not contain valid asset data")
)

// Payload is the JSON document encoded into every asset tag.
type Payload struct {
	ID            int64      `json:"id"`
	AssetTag      string     `json:"asset_tag"`
	Model         string     `json:"model"`
	Manufacturer  string     `json:"manufacturer"`
	Category      string     `json:"category,omitempty"`
	State         string     `json:"state,omitempty"`
	Condition     string     `json:"condition,omitempty"`
	Location      string     `json:"location,omitempty"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
	AssignedEmail string     `json:"assigned_email,omitempty"`
	AssignedDate  *time.Time `json:"assigned_date,omitempty"`
}

// Validate checks the fields a scanner needs to identify the asset.
func (p Payload) Validate() error {
	if p.ID <= 0 || strings.TrimSpace(p.AssetTag) == "" ||
		strings.TrimSpace(p.Model) == "" || strings.TrimSpace(p.Manufacturer) == "" {
		return ErrMissingFields
	}
	return nil
}

// Text is the exact string placed in the QR symbol.
func (p Payload) Text() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseText turns scanned text back into a payload. Numeric ids encoded as
// strings are accepted.
func ParseText(text string) (Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil || raw == nil {
		return Payload{}, ErrNotJSON
	}

	var p Payload
	if id, ok := raw["id"]; ok {
		var s string
		if json.Unmarshal(id, &s) == nil {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				raw["id"] = json.RawMessage(s)
			}
		}
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return Payload{}, ErrNotJSON
	}
	if err := json.Unmarshal(normalized, &p); err != nil {
		return Payload{}, ErrMissingFields
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}
