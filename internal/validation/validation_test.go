package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"wamirror/internal/errors"
)

func TestValidateContactID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"digits", "919876543210", false},
		{"plus prefix", "+15550001", false},
		{"provider id", "pn-1", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"too long", strings.Repeat("1", 65), true},
		{"newline", "123\n456", true},
		{"slash", "12/34", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContactID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMessageID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"cloud api id", "wamid.HBgLOTE5ODc2", false},
		{"generated id", "msg_6f1c", false},
		{"empty", "", true},
		{"too long", strings.Repeat("x", 257), true},
		{"nul byte", "a\x00b", true},
		{"tab", "a\tb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateContactName(t *testing.T) {
	assert.NoError(t, ValidateContactName(""))
	assert.NoError(t, ValidateContactName("Ravi Kumar"))
	assert.Error(t, ValidateContactName(strings.Repeat("n", 257)))
	assert.Error(t, ValidateContactName("bad \xff name"))
}

func TestValidateMessageText(t *testing.T) {
	assert.NoError(t, ValidateMessageText("Your order shipped"))
	assert.Error(t, ValidateMessageText(" \n "))
	assert.Error(t, ValidateMessageText(strings.Repeat("x", 64*1024+1)))
}

func TestValidateHTTPRequestSize(t *testing.T) {
	small := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}"))
	assert.NoError(t, ValidateHTTPRequestSize(small, 16))

	large := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(strings.Repeat("x", 32)))
	err := ValidateHTTPRequestSize(large, 16)
	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))

	unknown := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	unknown.ContentLength = -1
	assert.NoError(t, ValidateHTTPRequestSize(unknown, 16))
}
