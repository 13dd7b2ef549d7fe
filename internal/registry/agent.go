package registry

import "time"

// Field limits, enforced identically at registration and metadata update.
const (
	MaxNameLength       = 50
	MaxCapabilities     = 10
	MaxCapabilityLength = 30
	MaxServiceTypes     = 10
)

// Known service type ids. 255 is the catch-all for bespoke work.
const (
	ServiceTypeYieldOptimization   = 1
	ServiceTypeRiskAnalysis        = 2
	ServiceTypeMarketPrediction    = 3
	ServiceTypeStrategyDevelopment = 4
	ServiceTypeDataAnalysis        = 5
	ServiceTypeSmartContractAudit  = 6
	ServiceTypeLiquidityProvision  = 7
	ServiceTypeArbitrageDetection  = 8
	ServiceTypePortfolioManagement = 9
	ServiceTypeCustom              = 255
)

// ValidServiceType reports whether t is a known service type id.
func ValidServiceType(t int) bool {
	return (t >= ServiceTypeYieldOptimization && t <= ServiceTypePortfolioManagement) || t == ServiceTypeCustom
}

// MaxReputationEvents caps each agent's reputation ledger. Appending past the
// cap evicts the oldest event first, so the ledger always holds the most
// recent events by insertion order.
const MaxReputationEvents = 100

// Score bounds. Scores are stored as integers and displayed as 0.00-100.00.
const (
	MinScore int64 = 0
	MaxScore int64 = 10000
)

// Agent is the persistent profile for one registered identity. AgentID and
// RegistrationTime are immutable after registration; the score is owned by
// the trusted authority, everything else by the agent.
type Agent struct {
	AgentID            string    `json:"agent_id"`
	Name               string    `json:"name"`
	Capabilities       []string  `json:"capabilities"`
	ServiceTypes       []int     `json:"service_types"`
	ReputationScore    int64     `json:"reputation_score"`
	TotalServices      uint64    `json:"total_services"`
	SuccessfulServices uint64    `json:"successful_services"`
	TotalEarned        uint64    `json:"total_earned"`
	RegistrationTime   time.Time `json:"registration_time"`
	IsActive           bool      `json:"is_active"`
}

// Reason classifies a reputation change. The set is closed; unknown reasons
// are rejected before any state is touched.
type Reason string

const (
	ReasonServiceCompleted Reason = "service_completed"
	ReasonPositiveReview   Reason = "positive_review"
	ReasonNegativeReview   Reason = "negative_review"
	ReasonDisputeResolved  Reason = "dispute_resolved"
	ReasonDisputePenalty   Reason = "dispute_penalty"
)

// Valid reports whether r belongs to the closed reason set.
func (r Reason) Valid() bool {
	switch r {
	case ReasonServiceCompleted, ReasonPositiveReview, ReasonNegativeReview,
		ReasonDisputeResolved, ReasonDisputePenalty:
		return true
	}
	return false
}

// Event is one immutable reputation ledger entry. ServiceID optionally
// references the external transaction that caused the change; it is a plain
// reference, the ledger does not own the transaction record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Change    int64     `json:"change"`
	Reason    Reason    `json:"reason"`
	ServiceID string    `json:"service_id,omitempty"`
}
