package attachment

import (
	"net/http"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

func isHTML(name, contentType, content string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	if strings.HasPrefix(contentType, "text/html") {
		return true
	}
	return strings.HasPrefix(http.DetectContentType([]byte(content)), "text/html")
}

func toMarkdown(html string) (string, error) {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
