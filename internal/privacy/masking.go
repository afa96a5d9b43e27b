package privacy

import (
	"strings"

	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+919876543210" -> "+********3210"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		return "+" + maskString(phone[1:], constants.DefaultPhoneMaskLength)
	}
	return maskString(phone, constants.DefaultPhoneMaskLength)
}

// MaskMessageID keeps the provider prefix of a Cloud API id and the last 6 characters.
// Example: "wamid.HBgLOTE5ODc2" -> "wamid.******E5ODc2"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}

	if prefix, rest, ok := strings.Cut(messageID, "."); ok && prefix != "" && rest != "" {
		return prefix + "." + maskString(rest, constants.DefaultMessageIDVisibleLen)
	}
	return maskString(messageID, constants.DefaultMessageIDVisibleLen)
}

// MaskContactID masks a wa_id. Numeric ids are treated as phone numbers.
func MaskContactID(contactID string) string {
	if contactID == "" {
		return ""
	}
	if strings.HasPrefix(contactID, "+") || isNumeric(contactID) {
		return MaskPhoneNumber(contactID)
	}
	return maskString(contactID, 4)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// MaskSensitiveFields applies masking to identifier-bearing log fields.
func MaskSensitiveFields(fields logrus.Fields) logrus.Fields {
	if fields == nil {
		return nil
	}

	masked := make(logrus.Fields, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "phone_number", "from", "to", "recipient_id", "business_number":
			masked[k] = MaskPhoneNumber(s)
		case "message_id", "messageId", "meta_msg_id":
			masked[k] = MaskMessageID(s)
		case "contact_id", "wa_id":
			masked[k] = MaskContactID(s)
		case "text", "body", "contact_name":
			masked[k] = "[hidden]"
		default:
			masked[k] = v
		}
	}
	return masked
}
