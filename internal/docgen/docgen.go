// Package docgen converts the generated markdown site into standalone HTML,
// for previewing or publishing without Jekyll.
package docgen

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DefaultTitle is used when a page has neither a front matter title nor a top-level heading.
const DefaultTitle = "Graph-Break Registry"

// LinkTransformer rewrites relative links to .md pages so they point at the
// rendered .html pages instead.
type LinkTransformer struct{}

// Transform implements parser.ASTTransformer.
func (t *LinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		link.Destination = []byte(RewriteLink(string(link.Destination)))
		return ast.WalkContinue, nil
	})
}

// RewriteLink maps "page.md" and "page.md#frag" to their .html equivalents.
// Absolute URLs are left alone.
func RewriteLink(dest string) string {
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return dest
	}
	path, frag, hasFrag := strings.Cut(dest, "#")
	if !strings.HasSuffix(path, ".md") {
		return dest
	}
	path = strings.TrimSuffix(path, ".md") + ".html"
	if hasFrag {
		return path + "#" + frag
	}
	return path
}

// Page is a converted markdown document.
type Page struct {
	Title       string
	Description string
	Layout      string
	Body        string
}

var (
	md     = newMarkdown(goldmarkhtml.WithUnsafe()) // dashboard markup and marker comments are raw HTML
	safeMD = newMarkdown()
)

func newMarkdown(rendererOpts ...renderer.Option) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			meta.Meta,
			extension.GFM,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(&LinkTransformer{}, 100),
			),
		),
		goldmark.WithRendererOptions(rendererOpts...),
	)
}

// Convert renders one markdown document, front matter included. Raw HTML in
// the source is passed through.
func Convert(content []byte) (Page, error) {
	return convert(md, content)
}

// ConvertSafe is Convert with raw HTML in the source omitted from the output,
// for documents carrying text from outside the repository.
func ConvertSafe(content []byte) (Page, error) {
	return convert(safeMD, content)
}

func convert(markdown goldmark.Markdown, content []byte) (Page, error) {
	var buf bytes.Buffer
	ctx := parser.NewContext()
	doc := markdown.Parser().Parse(text.NewReader(content), parser.WithContext(ctx))
	if err := markdown.Renderer().Render(&buf, content, doc); err != nil {
		return Page{}, fmt.Errorf("converting markdown: %w", err)
	}

	page := Page{Body: buf.String()}
	metadata := meta.Get(ctx)
	if s, ok := metadata["title"].(string); ok {
		page.Title = s
	}
	if s, ok := metadata["description"].(string); ok {
		page.Description = s
	}
	if s, ok := metadata["layout"].(string); ok {
		page.Layout = s
	}
	if page.Title == "" {
		page.Title = firstHeading(doc, content)
	}
	if page.Title == "" {
		page.Title = DefaultTitle
	}
	return page, nil
}

// firstHeading returns the plain text of the first level-1 heading.
func firstHeading(doc ast.Node, source []byte) string {
	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 {
			return ast.WalkContinue, nil
		}
		title = nodeText(h, source)
		return ast.WalkStop, nil
	})
	return title
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			continue
		}
		b.WriteString(nodeText(c, source))
	}
	return b.String()
}

// WrapPage creates a complete HTML document around a converted page. base is
// the prefix that reaches the site root from the page ("", "../" or "/").
func WrapPage(p Page, base string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%[1]s</title>
    <meta name="description" content="%[2]s">
    <link rel="stylesheet" href="%[3]sassets/style.css">
    <link rel="icon" type="image/png" href="%[3]sassets/css/pytorch-logo.png">
</head>
<body>
    <header>
        <nav>
            <a href="%[3]sindex.html">Home</a>
            <a href="%[3]sdashboard.html">Dashboard</a>
        </nav>
    </header>
    <main>
%[4]s
    </main>
</body>
</html>
`, html.EscapeString(p.Title), html.EscapeString(p.Description), base, p.Body)
}

// GenerateDoc converts a single markdown file to an HTML page.
func GenerateDoc(inputPath, outputPath, base string) error {
	content, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}
	page, err := Convert(content)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(WrapPage(page, base)), 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}

// GenerateAll converts every .md file under srcDir into outDir, mirroring the
// directory layout, and copies srcDir/assets alongside. Directories starting
// with "_" hold Jekyll layouts and are skipped.
func GenerateAll(srcDir, outDir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	count := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != srcDir && strings.HasPrefix(d.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".md" {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("calculating relative path: %w", err)
		}
		outputPath := filepath.Join(outDir, strings.TrimSuffix(relPath, ".md")+".html")
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return fmt.Errorf("creating output subdirectory: %w", err)
		}

		logger.Info("Generating HTML", "src", path, "dst", outputPath)
		if err := GenerateDoc(path, outputPath, rootPrefix(relPath)); err != nil {
			return fmt.Errorf("%s: %w", relPath, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}

	assets := filepath.Join(srcDir, "assets")
	if _, err := os.Stat(assets); err == nil {
		if err := copyTree(assets, filepath.Join(outDir, "assets")); err != nil {
			return count, fmt.Errorf("copying assets: %w", err)
		}
	}
	return count, nil
}

// rootPrefix returns the relative path from a page back to the site root.
func rootPrefix(relPath string) string {
	depth := strings.Count(filepath.ToSlash(relPath), "/")
	return strings.Repeat("../", depth)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
