package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

// DefaultBaseURL is used when a schema declares neither host nor servers
const DefaultBaseURL = "http://localhost:8080"

// Schema is a loaded API document normalized to OpenAPI 3
type Schema struct {
	Doc     *openapi3.T
	Version string
	BaseURL string

	// Raw is the document as it was loaded
	Raw []byte
}

type versionHeader struct {
	Swagger        string `json:"swagger" yaml:"swagger"`
	OpenAPI        string `json:"openapi" yaml:"openapi"`
	SwaggerVersion string `json:"swaggerVersion" yaml:"swaggerVersion"`
}

// Load decodes a swagger 2.x or openapi 3.x document given as JSON or YAML
func Load(data []byte) (*Schema, error) {
	var header versionHeader
	if err := decode(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	var schema *Schema
	var err error
	switch {
	case strings.HasPrefix(header.Swagger, "2"):
		schema, err = loadV2(data, header.Swagger)
	case strings.HasPrefix(header.OpenAPI, "3"):
		schema, err = loadV3(data, header.OpenAPI)
	default:
		version := header.OpenAPI
		if version == "" {
			version = header.Swagger
		}
		if version == "" {
			version = header.SwaggerVersion
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	if err != nil {
		return nil, err
	}

	schema.Raw = data
	return schema, nil
}

// LoadFromFile reads and loads a document from disk
func LoadFromFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API schema: %w", err)
	}
	return Load(data)
}

func loadV2(data []byte, version string) (*Schema, error) {
	raw, err := toJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	var doc2 openapi2.T
	if err := json.Unmarshal(raw, &doc2); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	doc3, err := openapi2conv.ToV3(&doc2)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to convert swagger %s document: %v", ErrInvalidSchema, version, err)
	}
	if err := openapi3.NewLoader().ResolveRefsIn(doc3, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	baseURL := DefaultBaseURL
	if doc2.Host != "" {
		scheme := "http"
		if len(doc2.Schemes) > 0 {
			scheme = doc2.Schemes[0]
		}
		baseURL = strings.TrimRight(scheme+"://"+doc2.Host+doc2.BasePath, "/")
	}

	return &Schema{Doc: doc3, Version: version, BaseURL: baseURL}, nil
}

func loadV3(data []byte, version string) (*Schema, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	baseURL := DefaultBaseURL
	if len(doc.Servers) > 0 && doc.Servers[0] != nil && doc.Servers[0].URL != "" {
		baseURL = strings.TrimRight(doc.Servers[0].URL, "/")
	}

	return &Schema{Doc: doc, Version: version, BaseURL: baseURL}, nil
}

// Validate runs document validation and reports the issues as warnings.
// A schema with issues is still usable for exploration.
func Validate(ctx context.Context, s *Schema) []types.Warning {
	if err := s.Doc.Validate(ctx); err != nil {
		return []types.Warning{types.Warningf("API schema issue: %v", err)}
	}
	return nil
}

// ListPaths returns path -> method -> operationId for every operation
func ListPaths(s *Schema) map[string]map[string]string {
	result := make(map[string]map[string]string)
	if s.Doc.Paths == nil {
		return result
	}
	for path, pathItem := range s.Doc.Paths.Map() {
		methods := make(map[string]string)
		for method, operation := range pathItem.Operations() {
			methods[strings.ToLower(method)] = operation.OperationID
		}
		result[path] = methods
	}
	return result
}

// Fetcher retrieves API documents from a running service
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a new instance of Fetcher
func NewFetcher(client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client, logger: logger}
}

// LoadFromURL fetches the document at baseURL, or probes the usual swagger
// locations below it when baseURL is not a document itself
func (f *Fetcher) LoadFromURL(ctx context.Context, baseURL string) (*Schema, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	urls := []string{baseURL}
	for _, suffix := range []string{
		"/swagger/v1/swagger.json",
		"/swagger.json",
		"/v1/swagger.json",
		"/api/swagger.json",
		"/api/v1/swagger.json",
		"/openapi.json",
		"/v3/api-docs",
		"/swagger/v1/swagger",
		"/swagger",
	} {
		urls = append(urls, baseURL+suffix)
	}

	var lastErr error
	for _, url := range urls {
		f.logger.Debug("fetching API schema", zap.String("url", url))
		schema, err := f.fetch(ctx, url)
		if err == nil {
			f.logger.Info("fetched API schema", zap.String("url", url), zap.String("version", schema.Version))
			if strings.HasPrefix(schema.BaseURL, "/") {
				schema.BaseURL = originOf(baseURL) + schema.BaseURL
			}
			return schema, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to fetch API schema from any known URL: %w", lastErr)
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*Schema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return Load(body)
}

func originOf(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host
}

func decode(data []byte, v any) error {
	if isJSON(data) {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

func isJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// toJSON converts a YAML document into JSON so it can be decoded by the
// swagger 2 types
func toJSON(data []byte) ([]byte, error) {
	if isJSON(data) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys rewrites YAML mappings with non-string keys, such as
// unquoted response codes, into JSON-compatible maps
func stringKeys(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for k, item := range value {
			value[k] = stringKeys(item)
		}
		return value
	case map[any]any:
		converted := make(map[string]any, len(value))
		for k, item := range value {
			converted[fmt.Sprint(k)] = stringKeys(item)
		}
		return converted
	case []any:
		for i, item := range value {
			value[i] = stringKeys(item)
		}
		return value
	default:
		return v
	}
}
