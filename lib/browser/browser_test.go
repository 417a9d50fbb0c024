package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const searchPage = `<html>
<head>
	<script src="/assets/app.js"></script>
	<script>
		var settings = {"root": "https:\/\/elsewhere.example\/", "animals": "\/wp-json\/wppro-acc\/v1\/get\/animals?PageNumber=1"};
	</script>
</head>
<body>
	<div id="results" data-endpoint="/wp-json/wppro-acc/v1/get/animals?PageNumber=1"></div>
	<div data-url="/wp-json/other/v1/broken"></div>
</body>
</html>`

func newSite() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/":
			w.Header().Set("content-type", "text/html")
			w.Write([]byte(searchPage))
		case "/wp-json/wppro-acc/v1/get/animals":
			if r.URL.Query().Get("PageNumber") != "1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("content-type", "application/json")
			w.Write([]byte(`[{"animalId": "A1"}]`))
		case "/wp-json/other/v1/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestHTTPSession(t *testing.T) {
	server := newSite()
	defer server.Close()

	session, err := HTTPLauncher{}.Open(context.Background())
	require.NoError(t, err)
	defer session.Close()

	page, err := session.Navigate(context.Background(), server.URL+"/search/", func(url string) bool {
		return strings.Contains(url, "/wp-json/")
	})
	require.NoError(t, err)

	captured, err := page.Captures()
	require.NoError(t, err)
	require.Len(t, captured, 1)
	require.Equal(t, server.URL+"/wp-json/wppro-acc/v1/get/animals?PageNumber=1", captured[0].URL)
	require.JSONEq(t, `[{"animalId": "A1"}]`, string(captured[0].Body))

	doc, err := page.Document()
	require.NoError(t, err)
	require.Equal(t, 1, doc.Find("#results").Length())
}

func TestHTTPSessionNothingCaptured(t *testing.T) {
	server := newSite()
	defer server.Close()

	session, err := HTTPLauncher{}.Open(context.Background())
	require.NoError(t, err)
	defer session.Close()

	page, err := session.Navigate(context.Background(), server.URL+"/search/", func(url string) bool {
		return strings.Contains(url, "/never/")
	})
	require.NoError(t, err)
	_, err = page.Captures()
	require.ErrorIs(t, err, ErrNothingCaptured)

	_, err = session.Navigate(context.Background(), server.URL+"/missing", nil)
	require.Error(t, err)
}

func TestHTTPSessionClosed(t *testing.T) {
	session, err := HTTPLauncher{}.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	_, err = session.Navigate(context.Background(), "http://127.0.0.1:1/", nil)
	require.ErrorIs(t, err, ErrClosed)
}
