package jsvm

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// toUTF8 returns source text as UTF-8. HTML documents are decoded per their
// meta charset; other sources that are not valid UTF-8 are transcoded from
// the detected charset.
func toUTF8(body []byte, html bool) (string, error) {
	if utf8.Valid(body) {
		return strings.TrimPrefix(string(body), "\ufeff"), nil
	}

	contentType := "text/html"
	if !html {
		contentType = "text/plain; charset=" + detectCharset(body)
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("decode source: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode source: %w", err)
	}
	return string(out), nil
}

func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil || result.Charset == "" {
		return "windows-1252"
	}
	return strings.ToLower(result.Charset)
}
