package formula

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/gowebpki/jcs"
)

// Result is a successful calculation.
type Result struct {
	Value   float64 `json:"value"`
	Formula Variant `json:"formula"`
	Type    Type    `json:"formulaType"`
	// Inputs is the numeric subset of the inputs the formula read.
	Inputs map[string]float64 `json:"inputs"`
	// InputDigest is the sha256 of the RFC 8785 canonical form of every
	// bound input, so equal inputs give equal digests across callers.
	InputDigest string   `json:"inputDigest"`
	Metadata    Metadata `json:"metadata"`
}

// Metadata describes how a Result was produced.
type Metadata struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Version     string   `json:"version,omitempty"`
	Category    Category `json:"category,omitempty"`
	ValidRange  *Range   `json:"validRange,omitempty"`
	Notes       []string `json:"notes,omitempty"`

	// RiskLevel is set for damage factors.
	RiskLevel risk.Level `json:"riskLevel,omitempty"`
	// ConsequenceCategory is the A-E letter for consequence formulas.
	ConsequenceCategory string `json:"consequenceCategory,omitempty"`
	// Matrix is set for risk matrix formulas.
	Matrix *risk.Cell `json:"matrix,omitempty"`
}

// InputDigest hashes the canonical JSON of values.
func InputDigest(values map[string]any) (string, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize inputs: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
