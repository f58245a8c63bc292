// Package gist reads the identifier list from a file of a GitHub gist.
package gist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"tasks-pizza/internal/domain"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxDocumentSize caps the gist document read into memory.
const maxDocumentSize = 32 << 20

type identifierSource struct {
	client *http.Client
	url    string
	file   string
	logger *slog.Logger
	tracer trace.Tracer
}

// NewIdentifierSource reads identifiers from file inside the gist API
// document at url. The file content is expected to hold one identifier per line.
func NewIdentifierSource(client *http.Client, url, file string, logger *slog.Logger) domain.IdentifierSource {
	return &identifierSource{
		client: client,
		url:    url,
		file:   file,
		logger: logger.With("component", "identifier-source"),
		tracer: otel.Tracer("tasks-pizza-identifier-source"),
	}
}

// Fetch downloads the document and splits the file content on newlines.
// Order, duplicates and blank lines are kept.
func (s *identifierSource) Fetch(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "source.gist.Fetch", trace.WithAttributes(
		attribute.String("source.url", s.url),
		attribute.String("source.file", s.file),
	))
	defer span.End()

	content, err := s.fetchContent(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch identifiers")
		return nil, err
	}

	identifiers := strings.Split(content, "\n")
	span.SetAttributes(attribute.Int("identifiers.count", len(identifiers)))
	s.logger.Info("fetched identifiers", "count", len(identifiers))
	return identifiers, nil
}

func (s *identifierSource) fetchContent(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("failed to fetch %s: %s", s.url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", s.url, err)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("document at %s is not valid JSON", s.url)
	}

	content := gjson.GetBytes(body, "files."+escapePath(s.file)+".content")
	if !content.Exists() {
		return "", fmt.Errorf("file %q not found in document at %s", s.file, s.url)
	}
	return content.String(), nil
}

// escapePath escapes the gjson path characters of a file name such as "cities.txt".
func escapePath(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
