package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docproc-mcp/internal/registry"
)

const processingGuidePrompt = "document-processing-guide"

// registerPrompts registers the processing guide
func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(
		mcp.NewPrompt(processingGuidePrompt,
			mcp.WithPromptDescription("How to prepare and process documents of a given type"),
			mcp.WithArgument("document_type",
				mcp.ArgumentDescription("Document type id, or \"any\" for the general guide"),
			),
		),
		s.handleProcessingGuide,
	)
}

func (s *Server) handleProcessingGuide(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	typeID := strings.ToLower(strings.TrimSpace(request.Params.Arguments["document_type"]))

	var text string
	if typeID == "" || typeID == "any" {
		text = s.generalGuide()
	} else {
		d, err := s.registry.Describe(typeID)
		if err != nil {
			return nil, unknownTypeError(typeID, s.registry.Types())
		}
		text = typeGuide(d)
	}

	return mcp.NewGetPromptResult(
		"Document processing guide",
		[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text))},
	), nil
}

func (s *Server) generalGuide() string {
	var b strings.Builder
	b.WriteString("# Document Processing Guide\n\nSupported document types:\n")
	for _, d := range s.registry.DescribeAll() {
		fmt.Fprintf(&b, "- %s (%s): %s\n", d.DisplayName, d.TypeID, d.Description)
	}
	b.WriteString(`
Processing steps:
1. Document classification by keyword confidence
2. Text extraction (PDF files)
3. Structured extraction with the LLM, chunk by chunk for long documents
4. Merge of the chunk results, validation and cleanup

Use process_document_text for raw text or process_document_file for files.
extraction_method selects hybrid (default), schema_only or freeform_only.
`)
	return b.String()
}

func typeGuide(d registry.Description) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Processing Guide\n\n%s\n\n", d.DisplayName, d.Description)
	b.WriteString("For the best results:\n")
	b.WriteString("1. Keep sections clearly separated with headings or blank lines\n")
	b.WriteString("2. Use consistent date and number formats\n")
	fmt.Fprintf(&b, "3. Include the words the classifier looks for: %s\n\n", strings.Join(d.Keywords, ", "))
	fmt.Fprintf(&b, "Fields extracted: %s\n\n", strings.Join(schemaFields(d.Schema), ", "))
	b.WriteString("Example call:\n\n")
	fmt.Fprintf(&b, "    process_document_text(text=<%s text>, extraction_method=\"hybrid\")\n\n", strings.ToLower(d.DisplayName))
	fmt.Fprintf(&b, "The JSON schema is available as the resource %s%s.\n", schemaScheme, d.TypeID)
	return b.String()
}
