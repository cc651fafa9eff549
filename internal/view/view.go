// Package view は埋め込みHTMLテンプレートの描画を提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/hitoshi/userhub/internal/model"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// pageNames は描画可能なページの一覧。各ページはlayout.tmplと組で解析される。
var pageNames = []string{
	"home",
	"register",
	"submit",
	"login",
	"users",
	"show_user",
	"edit_user",
	"news",
}

// PageData は全ページ共通のテンプレートデータ。
// SuccessとErrorはセッションから消費済みのフラッシュメッセージ。
type PageData struct {
	Title       string
	CurrentUser *model.User
	CSRFToken   string
	Success     []string
	Error       []string
	Data        any
}

// Renderer は埋め込みテンプレートを保持し、ページを描画する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer はRendererを生成する。全テンプレートを起動時に解析し、
// 構文エラーをリクエスト処理前に検出する。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templatesFS, "templates/layout.tmpl", "templates/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render は指定ページを描画する。
// 描画エラー時に中途半端な出力を返さないよう、バッファへの描画成功後に書き出す。
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown template page: %s", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render template %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
