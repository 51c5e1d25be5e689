package abc

// Member is one entry of the ABC personals listing. Only the fields the
// intake flow consumes are mapped; the raw payload carries plenty more.
type Member struct {
	MemberID  string    `json:"memberId"`
	Personal  Personal  `json:"personal"`
	Agreement Agreement `json:"agreement"`
}

// Personal holds the member's contact and address data used to build the
// MindBody client-creation extras.
type Personal struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	BirthDate    string `json:"birthDate"`
	PrimaryPhone string `json:"primaryPhone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	CountryCode  string `json:"countryCode"`
}

// Agreement is the member's current financial agreement. ABC returns the
// numeric fields as decimal strings.
type Agreement struct {
	ID                    string `json:"id"`
	PaymentFrequency      string `json:"paymentFrequency"`
	NextDueAmount         string `json:"nextDueAmount"`
	DownPayment           string `json:"downPayment"`
	MembershipType        string `json:"membershipType"`
	MembershipTypeAbcCode string `json:"membershipTypeAbcCode"`
	PaymentPlan           string `json:"paymentPlan"`
}

type personalsResponse struct {
	Status  pageStatus `json:"status"`
	Members []Member   `json:"members"`
}

type pageStatus struct {
	NextPage int `json:"nextPage"`
}

type memberDetailsResponse struct {
	Members []Member `json:"members"`
}
