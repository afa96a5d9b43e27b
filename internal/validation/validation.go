package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"wamirror/internal/constants"
	"wamirror/internal/errors"
)

// ValidateContactID validates a wa_id. Cloud API wa_ids are digits,
// optionally "+"-prefixed; other provider ids are accepted when printable.
func ValidateContactID(contactID string) error {
	if strings.TrimSpace(contactID) == "" {
		return errors.NewValidationError("wa_id", "wa_id cannot be empty")
	}

	if len(contactID) > constants.MaxContactIDLength {
		return errors.NewValidationError("wa_id",
			fmt.Sprintf("wa_id too long (max %d characters)", constants.MaxContactIDLength))
	}

	if strings.ContainsAny(contactID, "\x00\n\r\t/") {
		return errors.NewValidationError("wa_id", "wa_id contains invalid characters")
	}

	return nil
}

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.NewValidationError("messageId", "message ID cannot be empty")
	}

	if len(messageID) > constants.MaxMessageIDLength {
		return errors.NewValidationError("messageId",
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxMessageIDLength))
	}

	// Check for control characters that could cause issues
	if strings.ContainsAny(messageID, "\x00\n\r\t") {
		return errors.NewValidationError("messageId", "message ID contains invalid characters")
	}

	return nil
}

// ValidateContactName validates an optional display name.
func ValidateContactName(name string) error {
	if len(name) > constants.MaxContactNameLen {
		return errors.NewValidationError("contactName",
			fmt.Sprintf("contact name too long (max %d bytes)", constants.MaxContactNameLen))
	}
	if !utf8.ValidString(name) {
		return errors.NewValidationError("contactName", "contact name is not valid UTF-8")
	}
	return nil
}

// ValidateMessageText validates the body of an outbound message.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.NewValidationError("text", "text cannot be blank")
	}
	if len(text) > constants.MaxMessageTextBytes {
		return errors.NewValidationError("text",
			fmt.Sprintf("text too long (max %d bytes)", constants.MaxMessageTextBytes))
	}
	return nil
}

// ValidateHTTPRequestSize rejects requests whose declared length exceeds
// maxSizeBytes. Unknown lengths (-1) pass; the body reader enforces the cap.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.NewValidationError("body",
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}
