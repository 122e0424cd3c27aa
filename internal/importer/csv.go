package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/openconreg/conreg/internal/importer/domain"
	"github.com/openconreg/conreg/pkg/money"
)

// createdAtLayouts covers the timestamp formats seen in legacy exports.
var createdAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCSV reads a header-addressed export into rows. Column order does
// not matter and unknown columns are ignored.
func ParseCSV(r io.Reader) ([]domain.Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["email"]; !ok {
		return nil, fmt.Errorf("export has no email column")
	}

	var rows []domain.Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		cell := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := domain.Row{
			Email:              cell("email"),
			LegalName:          cell("legal_name"),
			PreferredFirstName: cell("preferred_first_name"),
			PreferredLastName:  cell("preferred_last_name"),
			BadgeTitle:         cell("badge_title"),
			BadgeSubtitle:      cell("badge_subtitle"),
			AddressLine1:       cell("address_1"),
			AddressLine2:       cell("address_2"),
			City:               cell("city"),
			Province:           cell("province"),
			Postal:             cell("postal"),
			Country:            cell("country"),
			PublicationFormat:  cell("publication_format"),
			Membership:         cell("membership"),
			PaymentReference:   cell("payment_reference"),
			PaymentComment:     cell("payment_comment"),
			Notes:              cell("notes"),
		}

		if raw := cell("member_number"); raw != "" {
			number, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: member_number %q: %w", line, raw, err)
			}
			row.MembershipNumber = &number
		}
		if raw := cell("charge_amount"); raw != "" {
			amount, err := money.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: charge_amount %q: %w", line, raw, err)
			}
			row.ChargeAmount = amount
		}
		if raw := cell("created_at"); raw != "" {
			createdAt, err := parseCreatedAt(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row.CreatedAt = createdAt
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func parseCreatedAt(raw string) (time.Time, error) {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at %q has an unknown format", raw)
}
