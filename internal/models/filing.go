package models

import "time"

// FilingLinks points at the registry resources for a filing.
type FilingLinks struct {
	Self             string `json:"self"`
	DocumentMetadata string `json:"document_metadata"`
}

// FilingItem describes one entry of a company's public filing history. It is
// handed to the backend for ingestion instead of being fetched directly.
type FilingItem struct {
	Category          string            `json:"category"`
	Date              string            `json:"date"`
	Description       string            `json:"description"`
	Links             FilingLinks       `json:"links"`
	TransactionID     string            `json:"transaction_id"`
	DescriptionValues map[string]string `json:"description_values,omitempty"`
	Type              string            `json:"type,omitempty"`
	Pages             int               `json:"pages,omitempty"`
	Barcode           string            `json:"barcode,omitempty"`
}

// FilingDate parses Date as a calendar day. The zero time is returned for
// unparseable values.
func (f FilingItem) FilingDate() time.Time {
	t, err := time.Parse("2006-01-02", f.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FilingResponse is one page of filing history.
type FilingResponse struct {
	TotalCount   int          `json:"total_count"`
	ItemsPerPage int          `json:"items_per_page"`
	StartIndex   int          `json:"start_index"`
	Items        []FilingItem `json:"items"`
}
