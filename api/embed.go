// Package api 内嵌的 OpenAPI 文档与文档页面
package api

import "embed"

//go:embed openapi/*.yaml
var OpenAPIFS embed.FS

//go:embed docs/index.html
var DocsFS embed.FS

// SpecFile OpenAPI 文档在 OpenAPIFS 中的路径
const SpecFile = "openapi/memoria.yaml"
