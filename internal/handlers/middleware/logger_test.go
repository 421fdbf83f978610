package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyLogger struct {
	msg  string
	args []any
}

func (l *spyLogger) Info(msg string, args ...any) {
	l.msg = msg
	l.args = args
}

func Test_LoggerMiddleware(t *testing.T) {
	t.Parallel()

	spy := &spyLogger{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	LoggerMiddleware(spy)(next).ServeHTTP(w, r)

	require.Equal(t, "got HTTP request", spy.msg)

	logged := map[string]any{}
	for i := 0; i+1 < len(spy.args); i += 2 {
		logged[spy.args[i].(string)] = spy.args[i+1]
	}
	assert.Equal(t, http.MethodGet, logged["method"])
	assert.Equal(t, "/healthz", logged["uri"])
	assert.Equal(t, http.StatusTeapot, logged["status"])
	assert.Equal(t, len("short and stout"), logged["size"])
}
