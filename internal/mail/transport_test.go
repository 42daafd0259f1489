package mail_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/printflow-api/internal/mail"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		code      int
		wantNil   bool
		permanent bool
	}{
		{name: "200 accepted", code: 200, wantNil: true},
		{name: "202 queued", code: 202, wantNil: true},
		{name: "400 bad payload is permanent", code: 400, permanent: true},
		{name: "404 bad endpoint is permanent", code: 404, permanent: true},
		{name: "429 rate limited is transient", code: 429, permanent: false},
		{name: "500 is transient", code: 500, permanent: false},
		{name: "503 is transient", code: 503, permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mail.ClassifyStatus(tt.code)
			if tt.wantNil {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.permanent, mail.IsPermanent(err))
		})
	}
}
