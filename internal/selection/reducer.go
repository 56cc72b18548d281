// Package selection tracks the document catalog and the user's working
// selection. Narrowing the catalog is a three-stage filter (company, then
// document type, then year) modelled as a single reducer so that the
// reset rules between stages live in one place.
package selection

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/zulandar/docchat/internal/models"
)

// ActionType tags an Action.
type ActionType int

const (
	ActionSelectCompany ActionType = iota + 1
	ActionSelectDocumentType
	ActionSelectYear
	ActionReset
)

func (t ActionType) String() string {
	switch t {
	case ActionSelectCompany:
		return "select_company"
	case ActionSelectDocumentType:
		return "select_document_type"
	case ActionSelectYear:
		return "select_year"
	case ActionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Action is a transition of the facet state. Company is read by
// ActionSelectCompany, Option by the document type and year actions.
type Action struct {
	Type    ActionType
	Company *models.Document
	Option  *models.SelectOption
}

// State is the three-stage facet selection. A nil field means "not chosen".
type State struct {
	Company      *models.Document
	DocumentType *models.SelectOption
	Year         *models.SelectOption
}

// Complete reports whether every stage has a value.
func (s State) Complete() bool {
	return s.Company != nil && s.DocumentType != nil && s.Year != nil
}

// Reduce applies a to s. Choosing a company clears the document type and
// year; choosing a document type clears the year. Unknown actions leave the
// state unchanged.
func Reduce(s State, a Action) State {
	switch a.Type {
	case ActionSelectCompany:
		return State{Company: a.Company}
	case ActionSelectDocumentType:
		return State{Company: s.Company, DocumentType: a.Option}
	case ActionSelectYear:
		s.Year = a.Option
		return s
	case ActionReset:
		return State{}
	default:
		return s
	}
}

// Companies returns the distinct company names of catalog in first-seen order.
func Companies(catalog []models.Document) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range catalog {
		if d.Name == "" || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		names = append(names, d.Name)
	}
	return names
}

// CompanyDocument returns the first catalog entry for company.
func CompanyDocument(catalog []models.Document, company string) (models.Document, bool) {
	for _, d := range catalog {
		if d.Name == company {
			return d, true
		}
	}
	return models.Document{}, false
}

// DocumentTypes returns the distinct document types available for company.
func DocumentTypes(catalog []models.Document, company string) []models.SelectOption {
	if company == "" {
		return nil
	}
	seen := make(map[string]bool)
	var opts []models.SelectOption
	for _, d := range catalog {
		if d.Name != company || d.DocType == "" || seen[d.DocType] {
			continue
		}
		seen[d.DocType] = true
		opts = append(opts, models.SelectOption{Value: d.DocType, Label: d.DocType})
	}
	return opts
}

// Years returns the years available for company and docType, deduplicated by
// label and in catalog order.
func Years(catalog []models.Document, company, docType string) []models.SelectOption {
	if company == "" {
		return nil
	}
	seen := make(map[string]bool)
	var opts []models.SelectOption
	for _, d := range catalog {
		if d.Name != company || d.DocType != docType || seen[d.Year] {
			continue
		}
		seen[d.Year] = true
		opts = append(opts, models.SelectOption{Value: d.Year, Label: d.Year})
	}
	return opts
}

// SortYears returns a copy of opts in ascending numeric order. Labels that
// are not numbers sort last, keeping their relative order.
func SortYears(opts []models.SelectOption) []models.SelectOption {
	out := slices.Clone(opts)
	slices.SortStableFunc(out, func(a, b models.SelectOption) int {
		ai, aErr := strconv.Atoi(a.Label)
		bi, bErr := strconv.Atoi(b.Label)
		switch {
		case aErr != nil && bErr != nil:
			return 0
		case aErr != nil:
			return 1
		case bErr != nil:
			return -1
		}
		return cmp.Compare(ai, bi)
	})
	return out
}

// SortDocuments returns a copy of docs ordered by name, then year.
func SortDocuments(docs []models.Document) []models.Document {
	out := slices.Clone(docs)
	slices.SortStableFunc(out, func(a, b models.Document) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Year, b.Year)
	})
	return out
}
