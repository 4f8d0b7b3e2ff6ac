// Package render turns view models into HTML pages and HTMX fragments.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"quill/internal/models"

	"github.com/gofiber/fiber/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

// fragment files are shared by every page and rendered on their own.
var fragmentFiles = []string{
	"templates/fragments.html",
	"templates/comment.html",
}

// Renderer holds the parsed page and fragment templates.
type Renderer struct {
	pages     map[string]*template.Template
	fragments *template.Template
}

var funcs = template.FuncMap{
	"fmtTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
	"fmtTimePtr": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
	"inputTime": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format("2006-01-02T15:04")
	},
	"voteIs": func(v *models.VoteType, name string) bool {
		return v != nil && v.String() == name
	},
	"status": func(p *models.Post, now time.Time) string { return string(p.StatusAt(now)) },
	"add":    func(a, b int) int { return a + b },
	"card": func(p *models.Post, vote VoteView, now time.Time) postCard {
		return postCard{Post: p, Vote: vote, Now: now}
	},
	"listing": func(page PostListPage, now time.Time) postListing {
		return postListing{Page: page, Now: now}
	},
	"form": func(p *models.Post, categories []*models.Category, now time.Time) postForm {
		return postForm{Post: p, Categories: categories, Now: now}
	},
	"avatar": func(p *models.Profile) string {
		if p == nil || p.Avatar == nil || *p.Avatar == "" {
			return ""
		}
		return "/media/" + *p.Avatar
	},
}

type postCard struct {
	Post *models.Post
	Vote VoteView
	Now  time.Time
}

type postListing struct {
	Page PostListPage
	Now  time.Time
}

type postForm struct {
	Post       *models.Post
	Categories []*models.Category
	Now        time.Time
}

// Schedule is the publish time the edit form starts from. Only a pending
// schedule is offered; a live post's timestamp is already in the past.
func (f postForm) Schedule() *time.Time {
	if f.Post == nil || f.Post.PublishedAt == nil || !f.Post.PublishedAt.After(f.Now) {
		return nil
	}
	return f.Post.PublishedAt
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	fragments, err := template.New("fragments").Funcs(funcs).ParseFS(templateFS, fragmentFiles...)
	if err != nil {
		return nil, fmt.Errorf("parse fragments: %w", err)
	}

	pageFiles, err := fs.Glob(templateFS, "templates/page_*.html")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		name := strings.TrimSuffix(strings.TrimPrefix(path.Base(file), "page_"), ".html")
		files := append([]string{"templates/base.html", file}, fragmentFiles...)
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, files...)
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages, fragments: fragments}, nil
}

// Page writes the named page. A partial render writes only its content block.
func (r *Renderer) Page(w io.Writer, name string, view *View, partial bool) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	entry := "base"
	if partial {
		entry = "content"
	}
	return tmpl.ExecuteTemplate(w, entry, view)
}

// Fragment renders one named fragment to a string.
func (r *Renderer) Fragment(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render fragment %s: %w", name, err)
	}
	return buf.String(), nil
}

// IsPartial reports whether the request came from htmx and wants only the
// page body. Boosted navigations still get the full page.
func IsPartial(c *fiber.Ctx) bool {
	return c.Get("HX-Request") == "true" && c.Get("HX-Boosted") != "true"
}
