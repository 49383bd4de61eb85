package service

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/veilswap/veilcore/internal/interfaces"
	"github.com/veilswap/veilcore/internal/proof"
	"github.com/veilswap/veilcore/internal/routing"
)

var (
	ErrUnsupportedProofType = errors.New("unsupported proof type")
	ErrProofRejected        = errors.New("proof rejected")
)

// ServiceConfig configures the privacy engine.
type ServiceConfig struct {
	// PrivacyLevel selects the default routing obfuscation profile.
	PrivacyLevel interfaces.PrivacyLevel

	// CodecSalt binds the proof codec's AEAD key to this deployment.
	CodecSalt []byte

	// SubmissionRate caps real-segment submissions to the transfer layer.
	SubmissionRate rate.Limit

	// AuditLogPath is where the audit trail flushes its JSON report.
	// Empty disables flushing.
	AuditLogPath string

	// SegmentRunner executes real segments. Nil selects a simulated
	// runner that settles segments locally.
	SegmentRunner routing.SegmentRunner
}

// DefaultServiceConfig returns a config suitable for a single-node
// deployment.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		PrivacyLevel:   interfaces.PrivacyStandard,
		CodecSalt:      []byte("veilcore-codec"),
		SubmissionRate: rate.Every(100 * time.Millisecond),
	}
}

// ProofRequest carries the claim type, the wallet and the private
// inputs for one proof generation. Only the fields of the requested
// type are read.
type ProofRequest struct {
	Type          proof.Type
	WalletAddress string

	// balance
	Balance   uint64
	Threshold *uint64

	// range
	Value uint64
	Min   uint64
	Max   uint64

	// transaction
	TxSignature string
	Amount      uint64

	// identity
	Attributes map[string]string

	// ownership
	AssetMint string
	Quantity  uint64

	// merkle
	Element []byte
	Set     [][]byte

	// signature
	Message []byte
}
