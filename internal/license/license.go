// Package license renders sync license agreements for accepted proposals
// and keeps the generated PDFs in object storage.
package license

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"time"
)

var ErrRendererUnavailable = errors.New("license pdf renderer unavailable")

//go:embed templates/*.html
var templateFS embed.FS

var agreementTemplate = template.Must(template.New("agreement.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string { return t.Format("January 2, 2006") },
	"money":      func(v float64) string { return fmt.Sprintf("$%.2f", v) },
}).ParseFS(templateFS, "templates/agreement.html"))

// Agreement is everything printed on a license.
type Agreement struct {
	ProposalID      string
	TrackTitle      string
	TrackArtist     string
	ClientName      string
	ProducerName    string
	ProjectType     string
	Duration        string
	Exclusive       bool
	Amount          float64
	PaymentTerms    string
	AdditionalTerms string
	ExpiresAt       *time.Time
	AcceptedAt      time.Time
}

// Document is a generated agreement. URL is set when the PDF lives in
// object storage; otherwise Data carries the bytes.
type Document struct {
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// Renderer turns agreement HTML into a PDF.
type Renderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Storage is the object store the PDFs are kept in.
type Storage interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type Service struct {
	renderer Renderer
	storage  Storage
	linkTTL  time.Duration
}

// NewService wires a renderer and an optional storage backend.
func NewService(renderer Renderer, storage Storage) *Service {
	return &Service{renderer: renderer, storage: storage, linkTTL: 15 * time.Minute}
}

// RenderHTML fills the agreement template.
func RenderHTML(a Agreement) (string, error) {
	var buf bytes.Buffer
	if err := agreementTemplate.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("render agreement: %w", err)
	}
	return buf.String(), nil
}

// ObjectKey is where the agreement for a proposal is stored.
func ObjectKey(proposalID string) string {
	return "agreements/" + proposalID + ".pdf"
}

// Agreement returns the license PDF for a proposal, generating and storing
// it on first request.
func (s *Service) Agreement(ctx context.Context, a Agreement) (Document, error) {
	doc := Document{Filename: sanitizeFilename("license-"+a.TrackTitle) + ".pdf"}
	key := ObjectKey(a.ProposalID)

	if s.storage != nil {
		exists, err := s.storage.Exists(ctx, key)
		if err != nil {
			log.Printf("license: stat %s: %v", key, err)
		}
		if exists {
			return s.presign(ctx, doc, key)
		}
	}

	if s.renderer == nil {
		return Document{}, ErrRendererUnavailable
	}
	html, err := RenderHTML(a)
	if err != nil {
		return Document{}, err
	}
	pdf, err := s.renderer.RenderPDF(ctx, html)
	if err != nil {
		return Document{}, err
	}

	if s.storage == nil {
		doc.Data = pdf
		return doc, nil
	}
	if err := s.storage.Put(ctx, key, pdf, "application/pdf"); err != nil {
		return Document{}, fmt.Errorf("store agreement: %w", err)
	}
	return s.presign(ctx, doc, key)
}

func (s *Service) presign(ctx context.Context, doc Document, key string) (Document, error) {
	url, err := s.storage.PresignedURL(ctx, key, s.linkTTL)
	if err != nil {
		return Document{}, fmt.Errorf("presign agreement: %w", err)
	}
	doc.URL = url
	return doc, nil
}

func sanitizeFilename(title string) string {
	var out []rune
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) > 60 {
		out = out[:60]
	}
	if len(out) == 0 {
		return "license"
	}
	return string(out)
}
