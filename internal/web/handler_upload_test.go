package web

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedImageMIME(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		wantMIME     string
		wantDetected bool
	}{
		{
			name:         "JPEG",
			data:         []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10},
			wantMIME:     "image/jpeg",
			wantDetected: true,
		},
		{
			name:         "PNG",
			data:         []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00},
			wantMIME:     "image/png",
			wantDetected: true,
		},
		{
			name:         "WebP",
			data:         append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 10)...),
			wantMIME:     "image/webp",
			wantDetected: true,
		},
		{
			name:         "GIF is not accepted",
			data:         []byte("GIF89a"),
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "RIFF but not WebP",
			data:         append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...),
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "PDF disguised as image",
			data:         []byte("%PDF-1.4 malicious content"),
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "empty",
			data:         []byte{},
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "too short for WebP check",
			data:         []byte("RIFF"),
			wantMIME:     "",
			wantDetected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMIME, gotDetected := allowedImageMIME(tt.data)
			assert.Equal(t, tt.wantDetected, gotDetected)
			assert.Equal(t, tt.wantMIME, gotMIME)
		})
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"5f0c2a9e-3a62-4d0e-9f59-0b9e2f3f2a10", "5f0c2a9e-3a62-4d0e-9f59-0b9e2f3f2a10", true},
		{"5F0C2A9E-3A62-4D0E-9F59-0B9E2F3F2A10", "5f0c2a9e-3a62-4d0e-9f59-0b9e2f3f2a10", true},
		{"507f1f77bcf86cd799439011", "", false},
		{"not-an-id", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			r.SetPathValue("id", tt.raw)

			got, ok := parseID(r)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidationMessage(t *testing.T) {
	v := newValidator()

	err := v.Struct(listQuery{Order: "sideways"})
	require.Error(t, err)
	assert.Equal(t, "order must be one of: asc desc", validationMessage(err))

	err = v.Struct(deleteMultipleRequest{IDs: []string{"5f0c2a9e-3a62-4d0e-9f59-0b9e2f3f2a10", "nope"}})
	require.Error(t, err)
	assert.Equal(t, "ids[1] must be a UUID", validationMessage(err))

	err = v.Struct(deleteMultipleRequest{})
	require.Error(t, err)
	assert.Equal(t, "ids must contain at least one item", validationMessage(err))

	assert.NoError(t, v.Struct(listQuery{}))
	assert.NoError(t, v.Struct(listQuery{Order: "desc"}))

	assert.Equal(t, "Validation failed: plain", validationMessage(errors.New("plain")))
}
