package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

// fakeAPI is an in-process stand-in for the document/chat API.
type fakeAPI struct {
	mu sync.Mutex

	documents     any
	types         []string
	conversations map[string]any
	created       [][]string
	uploads       []map[string]string
	filings       []map[string]any
	streamEvents  []sseFrame
	failStatus    int // when non-zero every route answers with it
}

type sseFrame struct {
	event string
	data  string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fakeAPI{conversations: map[string]any{}}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		f.mu.Lock()
		status := f.failStatus
		f.mu.Unlock()
		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"detail": "boom"})
		}
	})
	api := r.Group("/api")
	api.GET("/document/types", func(c *gin.Context) {
		c.JSON(http.StatusOK, f.types)
	})
	api.GET("/document/schema", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{"year", c.Query("document_type") + "_period"})
	})
	api.GET("/document/", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if ids := c.QueryArray("document_ids"); len(ids) > 0 {
			out := make([]gin.H, 0, len(ids))
			for _, id := range ids {
				out = append(out, gin.H{"id": id, "url": "data/" + id + ".pdf", "name": "Doc " + id})
			}
			c.JSON(http.StatusOK, out)
			return
		}
		c.JSON(http.StatusOK, f.documents)
	})
	api.GET("/document/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Document not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "url": "data/x.pdf", "metadata_map": gin.H{"name": "Acme", "year": 2022, "doc_type": "Annual Report"}})
	})
	api.POST("/data/upload", func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		file, _ := fh.Open()
		content, _ := io.ReadAll(file)
		file.Close()
		f.mu.Lock()
		f.uploads = append(f.uploads, map[string]string{
			"filename":      fh.Filename,
			"content":       string(content),
			"company_name":  c.PostForm("company_name"),
			"document_type": c.PostForm("document_type"),
			"year":          c.PostForm("year"),
		})
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"status": "queued"})
	})
	api.POST("/data/search-ch", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		f.mu.Lock()
		f.filings = append(f.filings, body)
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"status": "queued"})
	})
	api.POST("/conversation/", func(c *gin.Context) {
		var body struct {
			DocumentIDs []string `json:"document_ids"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		f.mu.Lock()
		f.created = append(f.created, body.DocumentIDs)
		id := fmt.Sprintf("conv-%d", len(f.created))
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	api.GET("/conversation/:id", func(c *gin.Context) {
		f.mu.Lock()
		conv, ok := f.conversations[c.Param("id")]
		f.mu.Unlock()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Conversation not found"})
			return
		}
		c.JSON(http.StatusOK, conv)
	})
	api.GET("/conversation/:id/message", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		f.mu.Lock()
		frames := append([]sseFrame(nil), f.streamEvents...)
		f.mu.Unlock()
		for _, fr := range frames {
			writeSSE(c.Writer, fr.event, fr.data)
			c.Writer.Flush()
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

// writeSSE writes a single SSE frame. An empty event name is omitted.
func writeSSE(w io.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
