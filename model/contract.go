package model

import (
	"fmt"
	"time"
)

// ContractStatus is the lifecycle status of a contract.
type ContractStatus string

const (
	ContractDraft           ContractStatus = "draft"
	ContractApproved        ContractStatus = "approved"
	ContractSentToSignature ContractStatus = "sent_to_signature"
	ContractPartiallySigned ContractStatus = "partially_signed"
	ContractFullySigned     ContractStatus = "fully_signed"
	ContractCancelled       ContractStatus = "cancelled"
)

// ContractStatuses lists every lifecycle status in forward order.
var ContractStatuses = []ContractStatus{
	ContractDraft,
	ContractApproved,
	ContractSentToSignature,
	ContractPartiallySigned,
	ContractFullySigned,
	ContractCancelled,
}

// ParseContractStatus validates a persisted status value.
func ParseContractStatus(s string) (ContractStatus, error) {
	for _, st := range ContractStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown contract status %q", s)
}

// Terminal reports whether no further transition is possible.
func (s ContractStatus) Terminal() bool {
	return s == ContractFullySigned || s == ContractCancelled
}

// InSignature reports whether the contract is in one of the aggregate
// signature states that recomputation may move between.
func (s ContractStatus) InSignature() bool {
	switch s {
	case ContractSentToSignature, ContractPartiallySigned, ContractFullySigned:
		return true
	}
	return false
}

// Rank orders the non-cancelled statuses along the forward path.
// Cancelled has no rank and returns -1.
func (s ContractStatus) Rank() int {
	switch s {
	case ContractDraft:
		return 0
	case ContractApproved:
		return 1
	case ContractSentToSignature:
		return 2
	case ContractPartiallySigned:
		return 3
	case ContractFullySigned:
		return 4
	}
	return -1
}

// Section is one titled block of contract content.
type Section struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Editable bool   `json:"editable"`
}

// Party is a person who must sign the contract.
type Party struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Parties are the signing parties of a contract. Guarantor is optional.
type Parties struct {
	Owner     Party  `json:"owner"`
	Tenant    Party  `json:"tenant"`
	Guarantor *Party `json:"guarantor,omitempty"`
}

// Contract is a lease contract moving through approval and signature.
type Contract struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Status            ContractStatus `json:"status"`
	Content           []Section      `json:"content"`
	Parties           Parties        `json:"parties"`
	PropertyRef       string         `json:"property_ref,omitempty"`
	ApplicationRef    string         `json:"application_ref,omitempty"`
	ApprovedAt        *time.Time     `json:"approved_at,omitempty"`
	SentToSignatureAt *time.Time     `json:"sent_to_signature_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ExportFilename is the download name of the contract's PDF export.
func (c *Contract) ExportFilename() string {
	return "contract-" + c.ID + ".pdf"
}

// StatusChange is a conditional status write: it only applies while the
// persisted status still equals From.
type StatusChange struct {
	ContractID        string
	From              ContractStatus
	To                ContractStatus
	ApprovedAt        *time.Time
	SentToSignatureAt *time.Time
	// Parties, when set, replaces the stored parties in the same write.
	Parties           *Parties
	At                time.Time
}
