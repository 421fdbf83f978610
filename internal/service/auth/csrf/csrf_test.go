package csrf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leetbase/leetbase/internal/apperrors"
)

func Test_Guard(t *testing.T) {
	t.Parallel()

	guard := NewGuard()

	t.Run("issue returns unique tokens", func(t *testing.T) {
		first, err := guard.Issue()
		require.NoError(t, err)
		require.NotEmpty(t, first)

		second, err := guard.Issue()
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})

	t.Run("verify ok if values equal", func(t *testing.T) {
		token, err := guard.Issue()
		require.NoError(t, err)

		require.NoError(t, guard.Verify(token, token))
	})

	tests := []struct {
		name   string
		cookie string
		header string
	}{
		{name: "different values", cookie: "token-one", header: "token-two"},
		{name: "missing header", cookie: "token-one", header: ""},
		{name: "missing cookie", cookie: "", header: "token-two"},
		{name: "both missing", cookie: "", header: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Verify(tt.cookie, tt.header)
			require.ErrorIs(t, err, apperrors.ErrCSRFMismatch)
		})
	}
}
