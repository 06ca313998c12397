package fakesite

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(s string) string { return strings.ToUpper(s) }

func newServer(t *testing.T, opts ...Option) (*Site, *httptest.Server) {
	t.Helper()
	site := New(upper, opts...)
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	return site, srv
}

func translate(t *testing.T, srv *httptest.Server, body string) (*http.Response, TranslateResponse) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/translate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out TranslateResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestTranslate(t *testing.T) {
	site, srv := newServer(t)

	resp, out := translate(t, srv, `{"text":"  mama  "}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "MAMA", out.Output)

	_, out = translate(t, srv, `{"text":"   "}`)
	assert.Equal(t, "", out.Output, "blank input renders nothing")

	assert.Equal(t, int64(2), site.Translations())
}

func TestTranslate_BadJSON(t *testing.T) {
	site, srv := newServer(t)

	resp, _ := translate(t, srv, `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, site.Translations())
}

func TestTranslate_MethodNotAllowed(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/api/translate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPage(t *testing.T) {
	_, srv := newServer(t,
		WithDebounce(450*time.Millisecond),
		WithStreamStep(0),
		WithClearLatency(time.Second),
	)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)

	assert.Contains(t, page, `aria-label="Input Your Singlish Text Here."`)
	assert.Equal(t, 2, strings.Count(page, `class="`+OutputClass+`"`), "output div plus a role=textbox decoy")
	assert.Regexp(t, `debounce =\s*450\s*, step =\s*0\s*, clearLatency =\s*1000\s*;`, page)
}

func TestPage_CustomLabel(t *testing.T) {
	_, srv := newServer(t, WithInputLabel(`Type "here"`))

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `aria-label="Type &#34;here&#34;"`)
}

func TestHealth(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
