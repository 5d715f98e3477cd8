package restyutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestInstrumentClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain")
		fmt.Fprint(w, "No more results!")
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "http")
	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)

	client := resty.New()
	InstrumentClient(client, nil, output)

	_, err = client.R().
		SetAuthToken("secret-token").
		SetBody(`{"page": 2}`).
		Post(server.URL + "/launches/past/?page=2")
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, "1.http"))
	require.NoError(t, err)
	message := string(contents)
	require.Contains(t, message, "POST "+server.URL+"/launches/past/?page=2")
	require.Contains(t, message, `{"page": 2}`)
	require.Contains(t, message, "Authorization: <redacted>")
	require.NotContains(t, message, "secret-token")
	require.Contains(t, message, "200 ")
	require.Contains(t, message, "No more results!")
}
