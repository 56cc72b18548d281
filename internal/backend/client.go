// Package backend is the single point of contact with the document and
// conversation API. It translates domain operations into HTTP calls and
// decodes responses into models types. Nothing here retries; callers decide
// how to surface a failure.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zulandar/docchat/internal/logger"
	"github.com/zulandar/docchat/internal/models"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// Opts holds parameters for creating a Client.
type Opts struct {
	BaseURL    string        // e.g. http://localhost:8000/api/
	HTTPClient *http.Client  // defaults to a client without a global timeout
	Timeout    time.Duration // per request, not applied to message streams
	Logger     *zap.Logger
}

// Client talks to the backend API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     *zap.Logger
}

// Conversation is the hydrated state of a server-side conversation.
type Conversation struct {
	ID        string
	Messages  []models.Message
	Documents []models.Document
}

// UploadRequest describes one multipart file upload.
type UploadRequest struct {
	FileName     string
	Content      io.Reader
	CompanyName  string
	DocumentType string
	Fields       map[string]string // additional schema fields for the document type
}

// New creates a Client.
func New(opts Opts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend: base url is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("backend: invalid base url %q", opts.BaseURL)
	}
	base := opts.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL: base,
		http:    hc,
		timeout: opts.Timeout,
		log:     logger.OrNop(opts.Logger),
	}, nil
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends req and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend: request failed", zap.String("op", op), zap.String("url", req.URL.String()), zap.Error(err))
		return nil, &NetworkError{Op: op, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warn("backend: non-2xx response",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return nil, &NetworkError{Op: op, URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: req.URL.String(), Err: err}
	}
	c.log.Debug("backend: request done",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return body, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: build request: %w", op, err)
	}
	return c.do(ctx, op, req)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: encode request: %w", op, err)
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint(path, nil), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("backend: %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, op, req)
}

func parseJSON(op string, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &DecodeError{Op: op, Err: errors.New("invalid JSON")}
	}
	return gjson.ParseBytes(body), nil
}

// ListDocumentTypes returns the document types the backend can ingest.
func (c *Client) ListDocumentTypes(ctx context.Context) ([]string, error) {
	const op = "list document types"
	body, err := c.get(ctx, op, "document/types", nil)
	if err != nil {
		return nil, err
	}
	var types []string
	if err := json.Unmarshal(body, &types); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	return types, nil
}

// DocumentSchema returns the extra upload fields for a document type.
func (c *Client) DocumentSchema(ctx context.Context, docType string) ([]string, error) {
	const op = "document schema"
	body, err := c.get(ctx, op, "document/schema", url.Values{"document_type": {docType}})
	if err != nil {
		return nil, err
	}
	var fields []string
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	return fields, nil
}

// FetchDocuments returns the whole document catalog.
func (c *Client) FetchDocuments(ctx context.Context) ([]models.Document, error) {
	return c.fetchDocuments(ctx, "fetch documents", nil)
}

// FetchDocumentsByID returns the catalog entries for ids.
func (c *Client) FetchDocumentsByID(ctx context.Context, ids []string) ([]models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return c.fetchDocuments(ctx, "fetch documents by id", url.Values{"document_ids": ids})
}

func (c *Client) fetchDocuments(ctx context.Context, op string, query url.Values) ([]models.Document, error) {
	body, err := c.get(ctx, op, "document/", query)
	if err != nil {
		return nil, err
	}
	arr, err := parseJSON(op, body)
	if err != nil {
		return nil, err
	}
	docs, err := normalizeDocuments(c.baseURL, arr)
	if err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	return docs, nil
}

// FetchDocument returns a single document.
func (c *Client) FetchDocument(ctx context.Context, id string) (models.Document, error) {
	const op = "fetch document"
	body, err := c.get(ctx, op, "document/"+url.PathEscape(id), nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return models.Document{}, &NotFoundError{Resource: "document", ID: id}
		}
		return models.Document{}, err
	}
	obj, err := parseJSON(op, body)
	if err != nil {
		return models.Document{}, err
	}
	doc, err := normalizeDocument(c.baseURL, obj, 0)
	if err != nil {
		return models.Document{}, &DecodeError{Op: op, Err: err}
	}
	return doc, nil
}

// UploadFile sends a document for server-side indexing.
func (c *Client) UploadFile(ctx context.Context, upload UploadRequest) error {
	const op = "upload file"
	if upload.FileName == "" || upload.Content == nil {
		return &UploadError{Name: upload.FileName, Err: errors.New("file name and content are required")}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, upload))
	}()

	req, err := http.NewRequest(http.MethodPost, c.endpoint("data/upload", nil), pr)
	if err != nil {
		pr.Close()
		return &UploadError{Name: upload.FileName, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if _, err := c.do(ctx, op, req); err != nil {
		pr.CloseWithError(err)
		return &UploadError{Name: upload.FileName, Err: err}
	}
	c.log.Info("backend: file uploaded", zap.String("file", upload.FileName))
	return nil
}

func writeUploadForm(mw *multipart.Writer, upload UploadRequest) error {
	if upload.CompanyName != "" {
		if err := mw.WriteField("company_name", upload.CompanyName); err != nil {
			return err
		}
	}
	if upload.DocumentType != "" {
		if err := mw.WriteField("document_type", upload.DocumentType); err != nil {
			return err
		}
	}
	for k, v := range upload.Fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", upload.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return err
	}
	return mw.Close()
}

// UploadFiling asks the backend to fetch and ingest a public filing.
func (c *Client) UploadFiling(ctx context.Context, filing models.FilingItem) error {
	const op = "upload filing"
	if _, err := c.postJSON(ctx, op, "data/search-ch", filing); err != nil {
		return &UploadError{Name: "filing " + filing.TransactionID, Err: err}
	}
	c.log.Info("backend: filing uploaded", zap.String("transaction_id", filing.TransactionID))
	return nil
}

// CreateConversation starts a new conversation over documentIDs. Every call
// creates a new conversation.
func (c *Client) CreateConversation(ctx context.Context, documentIDs []string) (string, error) {
	const op = "create conversation"
	if documentIDs == nil {
		documentIDs = []string{}
	}
	body, err := c.postJSON(ctx, op, "conversation/", map[string][]string{"document_ids": documentIDs})
	if err != nil {
		return "", err
	}
	obj, err := parseJSON(op, body)
	if err != nil {
		return "", err
	}
	id := firstString(obj, "id")
	if id == "" {
		return "", &DecodeError{Op: op, Err: errors.New("response has no id")}
	}
	return id, nil
}

// FetchConversation returns the messages and documents of a conversation.
func (c *Client) FetchConversation(ctx context.Context, id string) (*Conversation, error) {
	const op = "fetch conversation"
	body, err := c.get(ctx, op, "conversation/"+url.PathEscape(id), nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, &NotFoundError{Resource: "conversation", ID: id}
		}
		return nil, err
	}
	obj, err := parseJSON(op, body)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeMessages(obj.Get("messages"))
	if err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	var docs []models.Document
	if d := obj.Get("documents"); d.Exists() && d.Type != gjson.Null {
		docs, err = normalizeDocuments(c.baseURL, d)
		if err != nil {
			return nil, &DecodeError{Op: op, Err: err}
		}
	}
	return &Conversation{ID: id, Messages: msgs, Documents: docs}, nil
}

func isStatus(err error, code int) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.StatusCode == code
}
