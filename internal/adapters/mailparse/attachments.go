// Package mailparse extracts scannable attachments from a raw message.
package mailparse

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// Source walks the MIME tree of one raw message and yields the parts whose
// content type makes them scan candidates: image/*, application/pdf and
// application/octet-stream.
type Source struct {
	reader io.Reader
	logger *zap.Logger
}

// New creates an attachment source reading one raw RFC 822 message
func New(r io.Reader, logger *zap.Logger) *Source {
	return &Source{reader: r, logger: logger}
}

// Attachments parses the message and returns its scan candidates with
// declared content type, filename (or content-id) and decoded bytes.
func (s *Source) Attachments() ([]core.Attachment, error) {
	entity, err := message.Read(s.reader)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	var out []core.Attachment
	if err := s.walk(entity, &out); err != nil {
		return nil, err
	}
	s.logger.Debug("Extracted attachments", zap.Int("count", len(out)))
	return out, nil
}

func (s *Source) walk(entity *message.Entity, out *[]core.Attachment) error {
	mr := entity.MultipartReader()
	if mr == nil {
		return s.collect(entity, out)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A malformed part aborts only the remainder of this subtree
			s.logger.Warn("Failed to read message part", zap.Error(err))
			return nil
		}
		if err := s.walk(part, out); err != nil {
			return err
		}
	}
}

func (s *Source) collect(entity *message.Entity, out *[]core.Attachment) error {
	mediaType, _, err := entity.Header.ContentType()
	if err != nil {
		s.logger.Debug("Part with unparseable content type skipped", zap.Error(err))
		return nil
	}
	if !scannable(mediaType) {
		return nil
	}

	data, err := io.ReadAll(entity.Body)
	if err != nil {
		s.logger.Warn("Failed to decode part body", zap.Error(err), zap.String("content_type", mediaType))
		return nil
	}

	*out = append(*out, core.Attachment{
		ContentType: mediaType,
		Filename:    partName(entity),
		Data:        data,
	})
	return nil
}

func scannable(mediaType string) bool {
	mediaType = strings.ToLower(mediaType)
	return strings.HasPrefix(mediaType, "image/") ||
		mediaType == "application/pdf" ||
		mediaType == "application/octet-stream"
}

// partName returns the declared filename, falling back to the content-id
func partName(entity *message.Entity) string {
	if _, params, err := entity.Header.ContentDisposition(); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	if _, params, err := entity.Header.ContentType(); err == nil {
		if name := params["name"]; name != "" {
			return name
		}
	}
	return strings.Trim(entity.Header.Get("Content-Id"), "<>")
}
