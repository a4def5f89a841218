package provider

import "time"

// TokenResult is the normalized outcome of an OAuth code exchange or refresh.
type TokenResult struct {
	AccessToken       string
	RefreshToken      string
	ExpiresAt         time.Time
	ProviderAccountID string
	Scopes            []string
}

// DirectoryPage is one page of provider-owned individual identifiers.
type DirectoryPage struct {
	IndividualIDs []string
	NextPageToken string
}

// Individual is the normalized detail record for one employee.
type Individual struct {
	ID         string
	FirstName  string
	LastName   string
	Email      string
	Title      string
	Department string
	NationalID string
	StartDate  *time.Time
	EndDate    *time.Time
	IsActive   bool
	Raw        map[string]interface{}
}

// PayStatement is the normalized pay statement record. It carries its pay-run
// reference so pay runs can be upserted from statement data.
type PayStatement struct {
	ID           string
	IndividualID string
	PayRunID     string
	PayDate      *time.Time
	PeriodStart  *time.Time
	PeriodEnd    *time.Time
	GrossPay     float64
	NetPay       float64
	TaxWithheld  float64
	Currency     string
	Raw          map[string]interface{}
}
