package model

// SlashProof is the evidence submitted with a slash. Valid is the placeholder flag
// honored by flag-mode verification; the message/signature pairs carry an
// equivocation proof (hex encoded).
type SlashProof struct {
	Valid      bool   `json:"valid,omitempty"`
	Round      uint64 `json:"round,omitempty"`
	MessageA   string `json:"message_a,omitempty"`
	SignatureA string `json:"signature_a,omitempty"`
	MessageB   string `json:"message_b,omitempty"`
	SignatureB string `json:"signature_b,omitempty"`
}
