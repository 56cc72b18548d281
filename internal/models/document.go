package models

// MaxSelectedDocuments caps the user's working selection.
const MaxSelectedDocuments = 10

// Document is a backend document normalized into the client's canonical
// schema. The working catalog is replaced wholesale on every fetch.
type Document struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Name    string `json:"name"`
	Year    string `json:"year"`
	DocType string `json:"docType"`
	Color   string `json:"color"`
}

// SelectOption is a derived facet value (document type, year).
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// DocumentColors holds one display color per selectable document slot.
var DocumentColors = [MaxSelectedDocuments]string{
	"llama-purple",
	"llama-magenta",
	"llama-red",
	"llama-orange",
	"llama-yellow",
	"llama-lime",
	"llama-teal",
	"llama-cyan",
	"llama-blue",
	"llama-indigo",
}

// ColorForIndex returns the color for the document at position i of a
// fetched catalog. Positions past the palette reuse the first color.
func ColorForIndex(i int) string {
	if i < 0 || i >= len(DocumentColors) {
		return DocumentColors[0]
	}
	return DocumentColors[i]
}
