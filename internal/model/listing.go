package model

// BusinessListing is one business discovered by the listing search stage.
// Listings are immutable once accepted; the discovery stage guarantees
// domains are unique across a single run.
type BusinessListing struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Phone   string  `json:"phone"`
	Website string  `json:"website"`
	Domain  string  `json:"domain"`
	Rating  float64 `json:"rating"`
	Reviews int     `json:"reviews"`
	City    string  `json:"city"`
	Query   string  `json:"query"`
}

// Contact is a person discovered through contact-database enrichment.
type Contact struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
}

// CsvRow is one exported contact row: business identity plus one email.
type CsvRow struct {
	Name    string
	Address string
	Phone   string
	Website string
	City    string
	Email   string
	Query   string
}
