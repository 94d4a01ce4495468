package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ContentType discriminates the ContentBlock variants.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeResource ContentType = "resource"
)

// ContentBlock is one unit of tool-call result payload. Type selects the
// active variant: Text for text, Data and MimeType for image, Resource for
// embedded resources. Only the active variant's fields are encoded, and the
// variant's required fields are always present even when empty.
type ContentBlock struct {
	Type     ContentType       `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Resource *ResourceContents `json:"resource,omitempty"`
}

// ResourceContents is the payload of an embedded resource. Exactly one of
// Text or Blob (base64) is set.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// ImageBlock returns an image content block carrying base64 data.
func ImageBlock(data, mimeType string) ContentBlock {
	return ContentBlock{Type: ContentTypeImage, Data: data, MimeType: mimeType}
}

// ResourceBlock returns an embedded resource content block.
func ResourceBlock(resource ResourceContents) ContentBlock {
	return ContentBlock{Type: ContentTypeResource, Resource: &resource}
}

// Text is shorthand for a single-block text result.
func Text(text string) []ContentBlock {
	return []ContentBlock{TextBlock(text)}
}

// Validate checks that the fields required by the block's variant are set
// and that no other variant's fields leak in.
func (b ContentBlock) Validate() error {
	switch b.Type {
	case ContentTypeText:
		if b.Data != "" || b.MimeType != "" || b.Resource != nil {
			return errors.New("mcp: text block carries non-text fields")
		}
		return nil
	case ContentTypeImage:
		if b.Data == "" {
			return errors.New("mcp: image block requires data")
		}
		if b.MimeType == "" {
			return errors.New("mcp: image block requires mimeType")
		}
		if b.Text != "" || b.Resource != nil {
			return errors.New("mcp: image block carries non-image fields")
		}
		return nil
	case ContentTypeResource:
		if b.Resource == nil {
			return errors.New("mcp: resource block requires resource")
		}
		if strings.TrimSpace(b.Resource.URI) == "" {
			return errors.New("mcp: resource block requires uri")
		}
		if (b.Resource.Text == "") == (b.Resource.Blob == "") {
			return errors.New("mcp: resource block requires exactly one of text or blob")
		}
		if b.Text != "" || b.Data != "" || b.MimeType != "" {
			return errors.New("mcp: resource block carries non-resource fields")
		}
		return nil
	default:
		return fmt.Errorf("mcp: unknown content type %q", b.Type)
	}
}

// MarshalJSON encodes the active variant only.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case ContentTypeText:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{b.Type, b.Text})
	case ContentTypeImage:
		return json.Marshal(struct {
			Type     ContentType `json:"type"`
			Data     string      `json:"data"`
			MimeType string      `json:"mimeType"`
		}{b.Type, b.Data, b.MimeType})
	case ContentTypeResource:
		return json.Marshal(struct {
			Type     ContentType       `json:"type"`
			Resource *ResourceContents `json:"resource"`
		}{b.Type, b.Resource})
	default:
		type plain ContentBlock
		return json.Marshal(plain(b))
	}
}

// MarshalJSON emits blob for binary resources and text otherwise, so a text
// resource always carries its text field.
func (r ResourceContents) MarshalJSON() ([]byte, error) {
	if r.Blob != "" {
		return json.Marshal(struct {
			URI      string `json:"uri"`
			MimeType string `json:"mimeType,omitempty"`
			Blob     string `json:"blob"`
		}{r.URI, r.MimeType, r.Blob})
	}
	return json.Marshal(struct {
		URI      string `json:"uri"`
		MimeType string `json:"mimeType,omitempty"`
		Text     string `json:"text"`
	}{r.URI, r.MimeType, r.Text})
}
