// Package export assembles the final verified-contact rows and renders
// them as CSV.
package export

import (
	"encoding/csv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

var header = []string{"Name", "Address", "Phone", "Website", "City", "Email", "Source Query"}

// Rows builds export rows from the listing set and its candidate email
// pool. Only emails present in the verified set produce rows; with
// onePerDomain set, each business contributes at most one row.
func Rows(listings []model.BusinessListing, emailsByListing map[int][]string, verified map[string]bool, onePerDomain bool) []model.CsvRow {
	var rows []model.CsvRow
	for i, listing := range listings {
		for _, email := range emailsByListing[i] {
			if !verified[email] {
				continue
			}
			rows = append(rows, model.CsvRow{
				Name:    listing.Name,
				Address: listing.Address,
				Phone:   listing.Phone,
				Website: listing.Website,
				City:    listing.City,
				Email:   email,
				Query:   listing.Query,
			})
			if onePerDomain {
				break
			}
		}
	}
	return rows
}

// BuildCSV renders rows into a CSV document with a header line.
// Deterministic and side-effect-free.
func BuildCSV(rows []model.CsvRow) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(header); err != nil {
		return "", eris.Wrap(err, "export: write header")
	}
	for _, r := range rows {
		record := []string{r.Name, r.Address, r.Phone, r.Website, r.City, r.Email, r.Query}
		if err := w.Write(record); err != nil {
			return "", eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "export: flush")
	}

	return sb.String(), nil
}
