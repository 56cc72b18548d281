package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

// fakeBackend serves the document and conversation API for command tests.
type fakeBackend struct {
	mu            sync.Mutex
	conversations map[string][]gin.H
	createdWith   [][]string
	uploads       []string
	filings       []string
}

var catalog = []gin.H{
	{"id": "1", "url": "data/acme-2022.pdf", "metadata_map": gin.H{"name": "Acme", "year": 2022, "doc_type": "Annual Report"}},
	{"id": "2", "url": "data/acme-2021.pdf", "metadata_map": gin.H{"name": "Acme", "year": 2021, "doc_type": "Annual Report"}},
	{"id": "3", "url": "data/beta-2020.pdf", "metadata_map": gin.H{"name": "Beta", "year": 2020, "doc_type": "Confirmation Statement"}},
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fakeBackend{conversations: map[string][]gin.H{}}

	r := gin.New()
	api := r.Group("/api")
	api.GET("/document/types", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{"Annual Report", "Confirmation Statement"})
	})
	api.GET("/document/schema", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{"year"})
	})
	api.GET("/document/", func(c *gin.Context) {
		c.JSON(http.StatusOK, catalog)
	})
	api.GET("/document/:id", func(c *gin.Context) {
		for _, d := range catalog {
			if d["id"] == c.Param("id") {
				c.JSON(http.StatusOK, d)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"detail": "Document not found"})
	})
	api.POST("/data/upload", func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		f.mu.Lock()
		f.uploads = append(f.uploads, fmt.Sprintf("%s|%s|%s|%s", fh.Filename, c.PostForm("company_name"), c.PostForm("document_type"), c.PostForm("year")))
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{})
	})
	api.POST("/data/search-ch", func(c *gin.Context) {
		var body struct {
			TransactionID string `json:"transaction_id"`
		}
		c.ShouldBindJSON(&body)
		f.mu.Lock()
		f.filings = append(f.filings, body.TransactionID)
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{})
	})
	api.POST("/conversation/", func(c *gin.Context) {
		var body struct {
			DocumentIDs []string `json:"document_ids"`
		}
		c.ShouldBindJSON(&body)
		f.mu.Lock()
		f.createdWith = append(f.createdWith, body.DocumentIDs)
		id := fmt.Sprintf("conv-%d", len(f.createdWith))
		f.conversations[id] = []gin.H{}
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	api.GET("/conversation/:id", func(c *gin.Context) {
		f.mu.Lock()
		msgs, ok := f.conversations[c.Param("id")]
		f.mu.Unlock()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Conversation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs, "documents": catalog[:1]})
	})
	api.GET("/conversation/:id/message", func(c *gin.Context) {
		id := c.Param("id")
		question := c.Query("user_message")
		f.mu.Lock()
		n := len(f.conversations[id])
		f.mu.Unlock()
		answerID := fmt.Sprintf("a%d", n)

		c.Header("Content-Type", "text/event-stream")
		writeFrame(c, "connected", gin.H{"type": "connected"})
		writeFrame(c, "", gin.H{"id": answerID, "conversationId": id, "content": "Answer", "role": "assistant", "status": "pending"})
		writeFrame(c, "", gin.H{"id": answerID, "conversationId": id, "content": "Answer to: " + question, "role": "assistant", "status": "success"})

		f.mu.Lock()
		f.conversations[id] = append(f.conversations[id],
			gin.H{"id": fmt.Sprintf("u%d", n), "conversation_id": id, "content": question, "role": "user", "status": "success"},
			gin.H{"id": answerID, "conversation_id": id, "content": "Answer to: " + question, "role": "assistant", "status": "success"},
		)
		f.mu.Unlock()
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeFrame(c *gin.Context, event string, v any) {
	data, _ := json.Marshal(v)
	if event != "" {
		fmt.Fprintf(c.Writer, "event: %s\n", event)
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// writeConfig writes a config using a sqlite store inside a temp dir.
func writeConfig(t *testing.T, backendURL string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`backend:
  base_url: %s/api/
  timeout: 5s
store:
  driver: sqlite
  path: %s
log:
  file: %s
  level: debug
chat:
  stream_idle_timeout: 5s
%s`, backendURL, filepath.Join(dir, "state.db"), filepath.Join(dir, "docchat.log"), extra)
	path := filepath.Join(dir, "docchat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestDocumentsCommands(t *testing.T) {
	_, srv := newFakeBackend(t)
	cfg := writeConfig(t, srv.URL, "")

	out := mustRun(t, "documents", "list", "-c", cfg, "--sort")
	for _, want := range []string{"ID", "Acme", "Beta", "Annual Report", srv.URL + "/api/data/acme-2022.pdf"} {
		if !strings.Contains(out, want) {
			t.Errorf("documents list output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "2021") > strings.Index(out, "2022") {
		t.Errorf("--sort did not order Acme by year:\n%s", out)
	}

	out = mustRun(t, "documents", "list", "-c", cfg, "--company", "Beta")
	if strings.Contains(out, "Acme") {
		t.Errorf("--company filter leaked Acme:\n%s", out)
	}

	out = mustRun(t, "documents", "types", "-c", cfg)
	if !strings.Contains(out, "Confirmation Statement") {
		t.Errorf("documents types output = %q", out)
	}

	out = mustRun(t, "documents", "show", "2", "-c", cfg)
	if !strings.Contains(out, "Year:     2021") {
		t.Errorf("documents show output = %q", out)
	}

	out = mustRun(t, "documents", "schema", "Annual Report", "-c", cfg)
	if strings.TrimSpace(out) != "year" {
		t.Errorf("documents schema output = %q", out)
	}

	if _, err := run(t, "", "documents", "show", "missing", "-c", cfg); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("show missing: err = %v, want not found", err)
	}
}

func TestSelectCommands(t *testing.T) {
	_, srv := newFakeBackend(t)
	cfg := writeConfig(t, srv.URL, "")

	out := mustRun(t, "select", "add", "-c", cfg, "--company", "Acme", "--type", "Annual Report", "--year", "2021")
	if !strings.Contains(out, "Selected Acme Annual Report 2021 (2), 1/10 selected") {
		t.Errorf("select add output = %q", out)
	}
	mustRun(t, "select", "add", "-c", cfg, "--company", "Acme", "--type", "Annual Report", "--year", "2021")
	mustRun(t, "select", "add", "-c", cfg, "--company", "Beta", "--type", "Confirmation Statement", "--year", "2020")

	out = mustRun(t, "select", "list", "-c", cfg)
	if !strings.Contains(out, "2/10 selected") {
		t.Errorf("select list output = %q", out)
	}
	if strings.Index(out, "Beta") > strings.Index(out, "Acme") {
		t.Errorf("newest selection should be listed first:\n%s", out)
	}

	_, err := run(t, "", "select", "add", "-c", cfg, "--company", "Acme", "--type", "Annual Report", "--year", "1999")
	if err == nil || !strings.Contains(err.Error(), "available years: 2021, 2022") {
		t.Errorf("bad year: err = %v", err)
	}

	out = mustRun(t, "select", "remove", "0", "-c", cfg)
	if !strings.Contains(out, "Removed document at index 0") {
		t.Errorf("select remove output = %q", out)
	}
	out = mustRun(t, "select", "remove", "7", "-c", cfg)
	if !strings.Contains(out, "Nothing selected at index 7") {
		t.Errorf("select remove out of range output = %q", out)
	}

	mustRun(t, "select", "clear", "-c", cfg)
	out = mustRun(t, "select", "list", "-c", cfg)
	if !strings.Contains(out, "No documents selected.") {
		t.Errorf("select list after clear = %q", out)
	}
}

func TestChatAndConversationCommands(t *testing.T) {
	f, srv := newFakeBackend(t)
	cfg := writeConfig(t, srv.URL, "")

	out := mustRun(t, "conversation", "show", "-c", cfg)
	if !strings.Contains(out, "No conversation yet") {
		t.Errorf("conversation show before chat = %q", out)
	}

	mustRun(t, "select", "add", "-c", cfg, "--company", "Acme", "--type", "Annual Report", "--year", "2022")
	out = mustRun(t, "chat", "-c", cfg, "what", "was", "revenue?")
	if !strings.Contains(out, "Answer to: what was revenue?") {
		t.Errorf("chat output = %q", out)
	}

	out, err := run(t, "second question\n\nthird question\n", "chat", "-c", cfg)
	if err != nil {
		t.Fatalf("chat from stdin: %v", err)
	}
	for _, want := range []string{"> second question", "Answer to: second question", "Answer to: third question"} {
		if !strings.Contains(out, want) {
			t.Errorf("chat stdin output missing %q:\n%s", want, out)
		}
	}

	f.mu.Lock()
	created := f.createdWith
	f.mu.Unlock()
	if len(created) != 1 {
		t.Fatalf("conversations created = %d, want 1", len(created))
	}
	if len(created[0]) != 1 || created[0][0] != "1" {
		t.Errorf("conversation created with %v, want selected document [1]", created[0])
	}

	out = mustRun(t, "conversation", "show", "-c", cfg)
	for _, want := range []string{"Conversation: conv-1", "Messages: 6", "[user] third question", "Acme Annual Report 2022"} {
		if !strings.Contains(out, want) {
			t.Errorf("conversation show missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "conversation", "reset", "-c", cfg)
	if !strings.Contains(out, "Forgot conversation conv-1") {
		t.Errorf("conversation reset output = %q", out)
	}
	out = mustRun(t, "chat", "-c", cfg, "--no-documents", "fresh")
	if !strings.Contains(out, "Answer to: fresh") {
		t.Errorf("chat after reset output = %q", out)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createdWith) != 2 || len(f.createdWith[1]) != 0 {
		t.Errorf("createdWith = %v, want a second conversation without documents", f.createdWith)
	}
}

func TestUploadFileCommand(t *testing.T) {
	f, srv := newFakeBackend(t)
	cfg := writeConfig(t, srv.URL, "")

	doc := filepath.Join(t.TempDir(), "acme_2023.pdf")
	if err := os.WriteFile(doc, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, "upload", "file", doc, "-c", cfg, "--company", "Acme", "--type", "Annual Report", "--field", "year=2023")
	if !strings.Contains(out, "Uploaded acme_2023.pdf") {
		t.Errorf("upload output = %q", out)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.uploads) != 1 || f.uploads[0] != "acme_2023.pdf|Acme|Annual Report|2023" {
		t.Errorf("uploads = %v", f.uploads)
	}
}

func TestFilingsCommands(t *testing.T) {
	f, srv := newFakeBackend(t)

	var (
		authMu  sync.Mutex
		gotAuth string
	)
	ch := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authMu.Lock()
		gotAuth = r.Header.Get("Authorization")
		authMu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"total_count": 1,
			"items": []map[string]any{{
				"category":       "accounts",
				"date":           "2023-04-28",
				"description":    "accounts-with-accounts-type-full",
				"transaction_id": "tx-1",
				"type":           "AA",
				"pages":          42,
				"links":          map[string]string{"self": "/company/01325869/filing-history/tx-1"},
			}},
		})
	}))
	t.Cleanup(ch.Close)

	cfg := writeConfig(t, srv.URL, fmt.Sprintf("filings:\n  base_url: %s\n  api_key: test-key\n", ch.URL))

	out := mustRun(t, "filings", "search", "01325869", "-c", cfg, "--category", "accounts")
	for _, want := range []string{"2023-04-28", "accounts", "tx-1", "Showing 1 of 1 filings"} {
		if !strings.Contains(out, want) {
			t.Errorf("filings search missing %q:\n%s", want, out)
		}
	}
	authMu.Lock()
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	authMu.Unlock()

	out = mustRun(t, "upload", "filing", "-c", cfg, "--company-number", "01325869", "--transaction", "tx-1")
	if !strings.Contains(out, "Queued accounts filing of 2023-04-28 (tx-1)") {
		t.Errorf("upload filing output = %q", out)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.filings) != 1 || f.filings[0] != "tx-1" {
		t.Errorf("filings sent to backend = %v", f.filings)
	}
}

func TestFilingsRequiresKey(t *testing.T) {
	t.Setenv("DOCCHAT_FILINGS_API_KEY", "")
	_, srv := newFakeBackend(t)
	cfg := writeConfig(t, srv.URL, "")

	_, err := run(t, "", "filings", "search", "01325869", "-c", cfg)
	if err == nil || !strings.Contains(err.Error(), "api key is required") {
		t.Errorf("err = %v, want api key error", err)
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	_, err := run(t, "", "documents", "list", "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v, want load config error", err)
	}
}
