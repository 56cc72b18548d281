package selection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/kvstore"
	"github.com/zulandar/docchat/internal/logger"
	"github.com/zulandar/docchat/internal/models"
	"github.com/zulandar/docchat/internal/persist"
	"go.uber.org/zap"
)

var (
	// ErrIncompleteSelection is returned when a document is added before
	// company, document type and year are all chosen.
	ErrIncompleteSelection = errors.New("selection: company, document type and year are required")

	// ErrSelectionFull is returned when the working selection already holds
	// models.MaxSelectedDocuments entries.
	ErrSelectionFull = fmt.Errorf("selection: at most %d documents can be selected", models.MaxSelectedDocuments)

	// ErrUnknownOption is returned when a facet value is not offered by the
	// current catalog.
	ErrUnknownOption = errors.New("selection: option not available")
)

// DocumentFetcher loads the document catalog.
type DocumentFetcher interface {
	FetchDocuments(ctx context.Context) ([]models.Document, error)
}

// Opts holds parameters for creating a Selector.
type Opts struct {
	Fetcher DocumentFetcher
	Store   kvstore.Store // nil keeps the selection in memory only
	Key     string        // defaults to config.DefaultSelectionKey
	Logger  *zap.Logger
}

// Selector owns the catalog, the facet state and the persisted selection.
// It is safe for concurrent use.
type Selector struct {
	fetcher  DocumentFetcher
	log      *zap.Logger
	selected *persist.Value[[]models.Document]

	initOnce sync.Once
	initErr  error

	mu      sync.Mutex
	catalog []models.Document
	state   State
}

// New creates a Selector. The persisted selection is read immediately; the
// catalog stays empty until Init.
func New(opts Opts) (*Selector, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("selection: fetcher is required")
	}
	key := opts.Key
	if key == "" {
		key = config.DefaultSelectionKey
	}
	log := logger.OrNop(opts.Logger)
	return &Selector{
		fetcher:  opts.Fetcher,
		log:      log,
		selected: persist.New[[]models.Document](opts.Store, key, nil, log),
	}, nil
}

// Init fetches the catalog. Only the first call does any work; later calls
// return the first call's result. On failure the catalog stays empty.
func (s *Selector) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		docs, err := s.fetcher.FetchDocuments(ctx)
		if err != nil {
			s.log.Warn("selection: could not fetch documents", zap.Error(err))
			s.initErr = fmt.Errorf("selection: fetch documents: %w", err)
			return
		}
		s.mu.Lock()
		s.catalog = docs
		s.mu.Unlock()
		s.log.Debug("selection: catalog loaded", zap.Int("documents", len(docs)))
	})
	return s.initErr
}

// Catalog returns a copy of the available documents.
func (s *Selector) Catalog() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.catalog)
}

// State returns the current facet state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Selector) dispatch(a Action) {
	s.state = Reduce(s.state, a)
}

// AvailableCompanies lists the company names of the catalog.
func (s *Selector) AvailableCompanies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Companies(s.catalog)
}

// AvailableDocumentTypes lists the document types of the chosen company.
func (s *Selector) AvailableDocumentTypes() []models.SelectOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Company == nil {
		return nil
	}
	return DocumentTypes(s.catalog, s.state.Company.Name)
}

// AvailableYears lists the years for the chosen company and document type,
// in catalog order. It is nil until both are chosen.
func (s *Selector) AvailableYears() []models.SelectOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableYears()
}

func (s *Selector) availableYears() []models.SelectOption {
	if s.state.Company == nil || s.state.DocumentType == nil {
		return nil
	}
	return Years(s.catalog, s.state.Company.Name, s.state.DocumentType.Value)
}

// SelectCompany chooses a company by name and clears the later stages.
func (s *Selector) SelectCompany(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := CompanyDocument(s.catalog, name)
	if !ok {
		return fmt.Errorf("%w: company %q", ErrUnknownOption, name)
	}
	s.dispatch(Action{Type: ActionSelectCompany, Company: &doc})
	return nil
}

// SelectDocumentType chooses a document type of the chosen company and
// clears the year.
func (s *Selector) SelectDocumentType(docType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Company == nil {
		return ErrIncompleteSelection
	}
	opt, ok := findOption(DocumentTypes(s.catalog, s.state.Company.Name), docType)
	if !ok {
		return fmt.Errorf("%w: document type %q for %s", ErrUnknownOption, docType, s.state.Company.Name)
	}
	s.dispatch(Action{Type: ActionSelectDocumentType, Option: &opt})
	return nil
}

// SelectYear chooses one of the available years.
func (s *Selector) SelectYear(year string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Company == nil || s.state.DocumentType == nil {
		return ErrIncompleteSelection
	}
	opt, ok := findOption(s.availableYears(), year)
	if !ok {
		return fmt.Errorf("%w: year %q", ErrUnknownOption, year)
	}
	s.dispatch(Action{Type: ActionSelectYear, Option: &opt})
	return nil
}

// ResetFacets clears company, document type and year.
func (s *Selector) ResetFacets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch(Action{Type: ActionReset})
}

func findOption(opts []models.SelectOption, value string) (models.SelectOption, bool) {
	for _, o := range opts {
		if o.Value == value || o.Label == value {
			return o, true
		}
	}
	return models.SelectOption{}, false
}

// AddSelectedDocument moves the chosen company, document type and year into
// the working selection and clears the facets. The catalog entry matching
// all three is added, falling back to the company entry. Adding a document
// that is already selected changes nothing and is not an error.
func (s *Selector) AddSelectedDocument() (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Complete() {
		return models.Document{}, ErrIncompleteSelection
	}
	doc := *s.state.Company
	for _, d := range s.catalog {
		if d.Name == doc.Name && d.DocType == s.state.DocumentType.Value && d.Year == s.state.Year.Value {
			doc = d
			break
		}
	}

	var full bool
	s.selected.Update(func(prev []models.Document) []models.Document {
		if slices.ContainsFunc(prev, func(d models.Document) bool { return d.ID == doc.ID }) {
			return prev
		}
		if len(prev) >= models.MaxSelectedDocuments {
			full = true
			return prev
		}
		return append([]models.Document{doc}, prev...)
	})
	if full {
		return models.Document{}, ErrSelectionFull
	}
	s.dispatch(Action{Type: ActionReset})
	s.log.Debug("selection: document added", zap.String("id", doc.ID), zap.String("name", doc.Name))
	return doc, nil
}

// RemoveSelectedDocument removes the entry at index. Out-of-range indexes
// are ignored.
func (s *Selector) RemoveSelectedDocument(index int) {
	s.selected.Update(func(prev []models.Document) []models.Document {
		if index < 0 || index >= len(prev) {
			return prev
		}
		out := make([]models.Document, 0, len(prev)-1)
		out = append(out, prev[:index]...)
		return append(out, prev[index+1:]...)
	})
}

// ClearSelection empties the working selection.
func (s *Selector) ClearSelection() {
	s.selected.Clear()
}

// SelectedDocuments returns the working selection, most recent first.
func (s *Selector) SelectedDocuments() []models.Document {
	return slices.Clone(s.selected.Get())
}

// SortedSelectedDocuments returns the working selection by name and year.
func (s *Selector) SortedSelectedDocuments() []models.Document {
	return SortDocuments(s.selected.Get())
}

// SelectedDocumentIDs returns the ids of the working selection.
func (s *Selector) SelectedDocumentIDs() []string {
	docs := s.selected.Get()
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

// SelectionEnabled reports whether another document can be added.
func (s *Selector) SelectionEnabled() bool {
	return len(s.selected.Get()) < models.MaxSelectedDocuments
}

// CanStartConversation reports whether at least one document is selected.
func (s *Selector) CanStartConversation() bool {
	return len(s.selected.Get()) > 0
}
