package mcp

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Resource URIs
const (
	documentTypesURI = "examples://document-types"
	allStatsURI      = "stats://all"

	statsScheme    = "stats://"
	schemaScheme   = "schema://"
	keywordsScheme = "keywords://"
)

// registerResources exposes the registry as read-only resources
func (s *Server) registerResources() {
	s.mcp.AddResource(
		mcp.NewResource(documentTypesURI, "Supported document types",
			mcp.WithResourceDescription("Keywords, extracted fields and tool usage for every registered document type"),
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleDocumentTypesResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(allStatsURI, "All processor statistics",
			mcp.WithResourceDescription("Processing statistics of every document type"),
			mcp.WithMIMEType("application/json"),
		),
		s.handleAllStatsResource,
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(statsScheme+"{document_type}", "Processor statistics",
			mcp.WithTemplateDescription("Documents processed, success rate, average time and confidence for one type"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleStatsResource,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(schemaScheme+"{document_type}", "Extraction schema",
			mcp.WithTemplateDescription("JSON schema used for schema-constrained extraction"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleSchemaResource,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(keywordsScheme+"{document_type}", "Classification keywords",
			mcp.WithTemplateDescription("Keywords that score a text for one document type"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleKeywordsResource,
	)
}

func (s *Server) handleDocumentTypesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var b strings.Builder
	b.WriteString("# Supported Document Types\n")
	for _, d := range s.registry.DescribeAll() {
		fmt.Fprintf(&b, "\n## %s (%s)\n", d.DisplayName, d.TypeID)
		fmt.Fprintf(&b, "%s\n\n", d.Description)
		fmt.Fprintf(&b, "- Keywords: %s\n", strings.Join(d.Keywords, ", "))
		fmt.Fprintf(&b, "- Extracted fields: %s\n", strings.Join(schemaFields(d.Schema), ", "))
		fmt.Fprintf(&b, "- Resources: %s%s, %s%s, %s%s\n",
			statsScheme, d.TypeID, schemaScheme, d.TypeID, keywordsScheme, d.TypeID)
	}
	b.WriteString("\n## Usage\n")
	b.WriteString("1. Process document text with process_document_text\n")
	b.WriteString("2. Process a PDF, TXT or Markdown file with process_document_file\n")
	b.WriteString("3. Classify only with classify_document_type\n")

	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      request.Params.URI,
		MIMEType: "text/markdown",
		Text:     b.String(),
	}}, nil
}

func (s *Server) handleAllStatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(request.Params.URI, map[string]interface{}{
		"processors": s.registry.AllStatistics(),
	}), nil
}

func (s *Server) handleStatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	typeID, err := s.resourceType(request.Params.URI, statsScheme)
	if err != nil {
		return nil, err
	}
	stats, err := s.registry.Statistics(typeID)
	if err != nil {
		return nil, unknownTypeError(typeID, s.registry.Types())
	}
	return jsonContents(request.Params.URI, stats), nil
}

func (s *Server) handleSchemaResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	typeID, err := s.resourceType(request.Params.URI, schemaScheme)
	if err != nil {
		return nil, err
	}
	d, err := s.registry.Describe(typeID)
	if err != nil {
		return nil, unknownTypeError(typeID, s.registry.Types())
	}
	return jsonContents(request.Params.URI, d.Schema), nil
}

func (s *Server) handleKeywordsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	typeID, err := s.resourceType(request.Params.URI, keywordsScheme)
	if err != nil {
		return nil, err
	}
	d, err := s.registry.Describe(typeID)
	if err != nil {
		return nil, unknownTypeError(typeID, s.registry.Types())
	}
	keywords := slices.Clone(d.Keywords)
	slices.Sort(keywords)
	return jsonContents(request.Params.URI, map[string]interface{}{
		"document_type": d.TypeID,
		"display_name":  d.DisplayName,
		"keywords":      keywords,
	}), nil
}

// resourceType extracts the document type from scheme://<type>
func (s *Server) resourceType(uri, scheme string) (string, error) {
	typeID, ok := strings.CutPrefix(uri, scheme)
	typeID = strings.Trim(typeID, "/")
	if !ok || typeID == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid resource uri", map[string]interface{}{
			"uri":      uri,
			"expected": scheme + "<document_type>",
		})
	}
	return typeID, nil
}

func unknownTypeError(typeID string, supported []string) error {
	return newMCPError(ErrorCodeNotFound, "unknown document type", map[string]interface{}{
		"document_type": typeID,
		"supported":     supported,
	})
}

func jsonContents(uri string, v interface{}) []mcp.ResourceContents {
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      uri,
		MIMEType: "application/json",
		Text:     formatJSON(v),
	}}
}
