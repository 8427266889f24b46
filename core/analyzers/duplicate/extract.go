package duplicate

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// unit is a function-like region of a file, the granularity at which
// fingerprints are compared.
type unit struct {
	file      string
	name      string
	code      string
	startLine int
	endLine   int
}

// fallbackWindow bounds a regex-extracted unit when the language has no
// parseable syntax tree.
const fallbackWindow = 20

// funcKeywordRe matches common function-introduction keywords across
// languages for the regex fallback.
var funcKeywordRe = regexp.MustCompile(`(?m)^[ \t]*(?:def|function|func|fn|const|let|var)\s+([A-Za-z_][A-Za-z0-9_]*)\s*[(\[=]`)

// extractUnits locates function-like units in the file. Python files go
// through tree-sitter for precise line spans; anything else, or a failed
// parse, falls back to keyword matching with a fixed window.
func extractUnits(ctx context.Context, path, content string) []unit {
	if strings.HasSuffix(path, ".py") {
		if units, err := extractPython(ctx, path, content); err == nil && len(units) > 0 {
			return units
		}
	}
	return extractByRegex(path, content)
}

// extractPython parses the file with tree-sitter and collects
// function_definition nodes with their exact spans.
func extractPython(ctx context.Context, path, content string) ([]unit, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	src := []byte(content)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lines := strings.Split(content, "\n")
	var units []unit

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "function_definition" {
			start := int(n.StartPoint().Row) + 1
			end := int(n.EndPoint().Row) + 1
			if end > len(lines) {
				end = len(lines)
			}

			name := ""
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name = nameNode.Content(src)
			}

			units = append(units, unit{
				file:      path,
				name:      name,
				code:      strings.Join(lines[start-1:end], "\n"),
				startLine: start,
				endLine:   end,
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	return units, nil
}

// extractByRegex finds function-like units by keyword and bounds each one by
// a fixed line window.
func extractByRegex(path, content string) []unit {
	lines := strings.Split(content, "\n")
	var units []unit

	for _, loc := range funcKeywordRe.FindAllStringSubmatchIndex(content, -1) {
		name := content[loc[2]:loc[3]]
		startLine := strings.Count(content[:loc[0]], "\n") + 1
		endLine := startLine + fallbackWindow
		if endLine > len(lines) {
			endLine = len(lines)
		}

		units = append(units, unit{
			file:      path,
			name:      name,
			code:      strings.Join(lines[startLine-1:endLine], "\n"),
			startLine: startLine,
			endLine:   endLine,
		})
	}
	return units
}
