package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"memoria/api"
)

var (
	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIErr  error
)

// LoadOpenAPI 加载并校验内嵌的 OpenAPI 文档
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	data, err := api.OpenAPIFS.ReadFile(api.SpecFile)
	if err != nil {
		return nil, fmt.Errorf("read openapi document: %w", err)
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

// openAPIDocument 首次请求时加载，之后复用
func openAPIDocument() ([]byte, error) {
	openAPIOnce.Do(func() {
		doc, err := LoadOpenAPI(context.Background())
		if err != nil {
			openAPIErr = err
			return
		}
		openAPIJSON, openAPIErr = doc.MarshalJSON()
	})
	return openAPIJSON, openAPIErr
}

// OpenAPI 返回 JSON 格式的 OpenAPI 文档
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	body, err := openAPIDocument()
	if err != nil {
		log.Printf("[Server] openapi unavailable: %v", err)
		http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Docs 文档页面
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	page, err := api.DocsFS.ReadFile("docs/index.html")
	if err != nil {
		http.Error(w, "docs unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
