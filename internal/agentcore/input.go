package agentcore

import (
	"encoding/base64"
	"strings"

	"github.com/agentforge/agentcore/pkg/models"
)

const (
	maxImageBytes    = 20 * 1024 * 1024
	maxDocumentBytes = 32 * 1024 * 1024
)

// Input is the user_input accepted by StreamMessage: plain text, or a
// mixed list of content blocks (text/image/document).
type Input struct {
	Text   string
	Blocks []models.ContentBlock
}

// ToMessage renders Input as the user turn appended to history.
func (in Input) ToMessage() models.Message {
	if len(in.Blocks) == 0 {
		return models.UserTurn(in.Text)
	}
	blocks := in.Blocks
	if strings.TrimSpace(in.Text) != "" {
		blocks = append([]models.ContentBlock{models.TextBlock(in.Text)}, blocks...)
	}
	return models.Message{Role: models.RoleUser, Blocks: blocks}
}

// validate enforces the input boundary: empty text with no blocks is
// rejected, and image/document blocks are size- and type-checked before
// any Provider call is made.
func (in Input) validate() error {
	if strings.TrimSpace(in.Text) == "" && len(in.Blocks) == 0 {
		return &InvalidInputError{Reason: "message is empty"}
	}
	for _, b := range in.Blocks {
		if err := validateAttachment(b); err != nil {
			return err
		}
	}
	return nil
}

func validateAttachment(b models.ContentBlock) error {
	switch b.Type {
	case models.BlockImage:
		if err := checkMediaSize(b, maxImageBytes); err != nil {
			return err
		}
	case models.BlockDocument:
		if b.Source == nil || b.Source.MediaType != "application/pdf" {
			return &InvalidInputError{Reason: "unsupported document media type: " + mediaTypeOf(b)}
		}
		if err := checkMediaSize(b, maxDocumentBytes); err != nil {
			return err
		}
	case models.BlockText, models.BlockToolUse, models.BlockToolResult:
		// not attachments; nothing to validate.
	default:
		return &InvalidInputError{Reason: "unsupported content block type: " + string(b.Type)}
	}
	return nil
}

func checkMediaSize(b models.ContentBlock, limit int) error {
	if b.Source == nil || b.Source.Kind != models.SourceBase64 {
		return nil // URL-sourced attachments aren't size-checked at this boundary.
	}
	// Base64 expands data by 4/3; decode length approximates raw bytes
	// without materializing the buffer.
	size := base64.StdEncoding.DecodedLen(len(b.Source.Data))
	if size > limit {
		return &InvalidInputError{Reason: "attachment exceeds size limit"}
	}
	return nil
}

func mediaTypeOf(b models.ContentBlock) string {
	if b.Source == nil {
		return "unknown"
	}
	return b.Source.MediaType
}
