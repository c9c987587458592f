package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://93.184.216.34/hook", false},
		{"http://[2606:2800:220:1:248:1893:25c8:1946]/hook", false},
		{"ftp://93.184.216.34/hook", true},
		{"/relative/path", true},
		{"https://localhost:9000/hook", true},
		{"https://LOCALHOST/hook", true},
		{"http://metadata.google.internal/computeMetadata", true},
		{"http://127.0.0.1/hook", true},
		{"http://[::1]/hook", true},
		{"http://[::ffff:10.0.0.1]/hook", true},
		{"http://10.1.2.3/hook", true},
		{"http://192.168.1.20/hook", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://0.0.0.0/hook", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateWebhookURL(context.Background(), tt.url, false)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafeEndpoint)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateWebhookURL_AllowPrivate(t *testing.T) {
	assert.NoError(t, ValidateWebhookURL(context.Background(), "http://10.1.2.3/hook", true))
	assert.NoError(t, ValidateWebhookURL(context.Background(), "http://localhost:9000/hook", true))
	assert.ErrorIs(t, ValidateWebhookURL(context.Background(), "file:///etc/passwd", true), ErrUnsafeEndpoint)
}
