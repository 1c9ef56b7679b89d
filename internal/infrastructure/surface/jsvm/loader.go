package jsvm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/shared/paths"
)

type script struct {
	name string
	src  string
}

// fetchScripts resolves an entry URL into scripts in execution order. An
// HTML entry contributes its <script> elements; anything else is run as one
// script.
func (s *Surface) fetchScripts(ctx context.Context, rawURL string, withPreload bool) ([]script, error) {
	var out []script
	if withPreload && s.preload != "" {
		raw, err := s.readFile(s.preload)
		if err != nil {
			return nil, fmt.Errorf("preload: %w", err)
		}
		src, err := toUTF8(raw, false)
		if err != nil {
			return nil, fmt.Errorf("preload: %w", err)
		}
		out = append(out, script{name: s.preload, src: src})
	}

	if rawURL == "" || rawURL == manifest.HeadlessEntryURL {
		return out, nil
	}

	body, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	html := isHTML(rawURL, body)
	text, err := toUTF8(body, html)
	if err != nil {
		return nil, err
	}
	if !html {
		return append(out, script{name: rawURL, src: text}), nil
	}

	scripts, err := s.extractScripts(ctx, rawURL, text)
	if err != nil {
		return nil, err
	}
	return append(out, scripts...), nil
}

func (s *Surface) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if manifest.IsRemote(rawURL) {
		if s.session == nil {
			return nil, fmt.Errorf("remote entry %s needs a session", rawURL)
		}
		body, err := s.session.Fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > s.cfg.MaxScriptBytes {
			return nil, fmt.Errorf("%s exceeds %d bytes", rawURL, s.cfg.MaxScriptBytes)
		}
		return body, nil
	}

	p, ok := manifest.PathFromFileURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("unsupported entry url %q", rawURL)
	}
	return s.readFile(p)
}

func (s *Surface) readFile(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if info.Size() > s.cfg.MaxScriptBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", p, s.cfg.MaxScriptBytes)
	}
	return os.ReadFile(p)
}

// extractScripts collects inline and src scripts from an HTML document.
// Local src scripts must stay inside the document's directory.
func (s *Surface) extractScripts(ctx context.Context, base, body string) ([]script, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", base, err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", base, err)
	}

	var (
		out      []script
		firstErr error
	)
	doc.Find("script").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if !executable(sel) {
			return true
		}

		src, ok := sel.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			out = append(out, script{name: fmt.Sprintf("%s#script%d", base, i), src: sel.Text()})
			return true
		}

		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			firstErr = fmt.Errorf("script src %q: %w", src, err)
			return false
		}
		target := baseURL.ResolveReference(ref)
		if err := sameBundle(baseURL, target); err != nil {
			firstErr = err
			return false
		}

		data, err := s.fetch(ctx, target.String())
		if err != nil {
			firstErr = fmt.Errorf("script %s: %w", target, err)
			return false
		}
		code, err := toUTF8(data, false)
		if err != nil {
			firstErr = fmt.Errorf("script %s: %w", target, err)
			return false
		}
		out = append(out, script{name: target.String(), src: code})
		return true
	})
	return out, firstErr
}

func executable(sel *goquery.Selection) bool {
	typ, ok := sel.Attr("type")
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

func sameBundle(base, target *url.URL) error {
	if base.Scheme != "file" {
		return nil
	}
	if target.Scheme != "file" {
		return fmt.Errorf("local document may not load %s", target)
	}
	dir := filepath.Dir(filepath.FromSlash(base.Path))
	if !paths.Within(dir, filepath.FromSlash(target.Path)) {
		return errors.New("script " + target.Path + " is outside the plugin bundle")
	}
	return nil
}

func isHTML(rawURL string, body []byte) bool {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	switch ext {
	case ".html", ".htm":
		return true
	case ".js", ".mjs", ".cjs":
		return false
	}
	return mimetype.Detect(body).Is("text/html")
}
