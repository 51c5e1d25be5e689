package mindbody

import (
	"strings"
	"time"
)

// TargetClient is the subset of MindBody's client record the intake flow
// reads.
type TargetClient struct {
	ID        string `json:"Id"`
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
	Email     string `json:"Email"`
	Active    bool   `json:"Active"`
}

// DuplicateResult wraps the duplicate-search page plus the pagination total.
type DuplicateResult struct {
	Clients []TargetClient
	Total   int
}

// CompleteInfo is the client-complete-info projection.
type CompleteInfo struct {
	Client TargetClient
	Active bool
}

// Contract is one offering from the contract catalog.
type Contract struct {
	ID                           string `json:"Id"`
	Name                         string `json:"Name"`
	ClientsChargedOnSpecificDate string `json:"ClientsChargedOnSpecificDate"`
}

// ContractSegment is one purchase/termination-dated period of a contract held
// by a client. EndDate null means the date is missing or unknown, not that
// the segment was terminated; TerminationDate null means still active.
type ContractSegment struct {
	SegmentID       string `json:"Id"`
	ContractID      string `json:"ContractId"`
	StartDate       *Date  `json:"StartDate"`
	EndDate         *Date  `json:"EndDate"`
	TerminationDate *Date  `json:"TerminationDate"`
}

// PurchaseResult is the portion of the purchase response later passes need.
type PurchaseResult struct {
	ClientContractID string `json:"ClientContractId"`
	SaleID           string `json:"SaleId"`
}

// Date tolerates both the date-only and timestamp renderings MindBody uses.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	// unknown rendering reads as zero rather than failing the whole payload
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

type tokenResponse struct {
	AccessToken string `json:"AccessToken"`
	Expires     string `json:"Expires"`
}

type requiredFieldsResponse struct {
	RequiredClientFields []string `json:"RequiredClientFields"`
}

type duplicatesResponse struct {
	PaginationResponse struct {
		TotalResults *int `json:"TotalResults"`
	} `json:"PaginationResponse"`
	ClientDuplicates []TargetClient `json:"ClientDuplicates"`
	Clients          []TargetClient `json:"Clients"`
}

type completeInfoResponse struct {
	Clients []TargetClient `json:"Clients"`
	Client  *TargetClient  `json:"Client"`
}

type addClientResponse struct {
	Client TargetClient `json:"Client"`
}

type contractsResponse struct {
	Contracts []Contract `json:"Contracts"`
}

type clientContractsResponse struct {
	Contracts []ContractSegment `json:"Contracts"`
}

type terminateResponse struct {
	Status string `json:"Status"`
}
