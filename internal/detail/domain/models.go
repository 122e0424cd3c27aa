package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Publication format choices offered on the membership form.
const (
	PaperPubsElectronic = "send_me_email"
	PaperPubsMail       = "send_me_post"
	PaperPubsBoth       = "send_me_email_and_post"
	PaperPubsNone       = "no_paper_pubs"
)

var publicationFormats = map[string]bool{
	PaperPubsElectronic: true,
	PaperPubsMail:       true,
	PaperPubsBoth:       true,
	PaperPubsNone:       true,
}

// Detail is the contact and badge information attached to a claim. It
// sits outside the money/ownership core but the import façade creates
// one as soon as a claim exists.
type Detail struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	ClaimID            snowflake.ID `json:"claim_id" gorm:"not null;index"`
	LegalName          string       `json:"legal_name" gorm:"type:text;not null"`
	PreferredFirstName string       `json:"preferred_first_name" gorm:"type:text"`
	PreferredLastName  string       `json:"preferred_last_name" gorm:"type:text"`
	BadgeTitle         string       `json:"badge_title" gorm:"type:text"`
	BadgeSubtitle      string       `json:"badge_subtitle" gorm:"type:text"`
	AddressLine1       string       `json:"address_line_1" gorm:"type:text"`
	AddressLine2       string       `json:"address_line_2" gorm:"type:text"`
	City               string       `json:"city" gorm:"type:text"`
	Province           string       `json:"province" gorm:"type:text"`
	Postal             string       `json:"postal" gorm:"type:text"`
	Country            string       `json:"country" gorm:"type:text"`
	PublicationFormat  string       `json:"publication_format" gorm:"type:text;not null"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (Detail) TableName() string { return "details" }

var (
	ErrMissingClaim     = errors.New("missing_claim")
	ErrMissingLegalName = errors.New("missing_legal_name")
	ErrMissingAddress   = errors.New("missing_address")
	ErrMissingCountry   = errors.New("missing_country")
	ErrInvalidPubFormat = errors.New("invalid_publication_format")
)

// Validate checks the detail for form submissions. Imported historical
// rows often predate address collection, so import mode relaxes the
// address and country requirements.
func (d *Detail) Validate(forImport bool) error {
	if d.ClaimID == 0 {
		return ErrMissingClaim
	}
	if strings.TrimSpace(d.LegalName) == "" {
		return ErrMissingLegalName
	}
	if !publicationFormats[d.PublicationFormat] {
		return ErrInvalidPubFormat
	}
	if forImport {
		return nil
	}
	if strings.TrimSpace(d.AddressLine1) == "" {
		return ErrMissingAddress
	}
	if strings.TrimSpace(d.Country) == "" {
		return ErrMissingCountry
	}
	return nil
}

// DisplayName prefers the preferred name and falls back to the legal
// name, matching what the form promises.
func (d *Detail) DisplayName() string {
	preferred := strings.TrimSpace(strings.TrimSpace(d.PreferredFirstName) + " " + strings.TrimSpace(d.PreferredLastName))
	if preferred != "" {
		return preferred
	}
	return strings.TrimSpace(d.LegalName)
}
