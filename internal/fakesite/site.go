// Package fakesite serves a local stand-in for the transliteration UI.
//
// The page has the same shape as the real target: a textarea labelled
// "Input Your Singlish Text Here." and an output div found by CSS. Typing
// is debounced in the browser, the translation is fetched from
// /api/translate and streamed into the output one rune at a time, and
// clearing the input empties the output after a short delay. That makes it
// a realistic target for dry runs and browser integration tests.
package fakesite

import (
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// Translator maps the full input text to the rendered output. An empty
// result renders nothing.
type Translator func(input string) string

// Site is the fake target. It is an http.Handler.
//
// Thread-safety: Site is safe for concurrent use.
type Site struct {
	router    *mux.Router
	translate Translator
	logger    *slog.Logger

	debounce     time.Duration
	streamStep   time.Duration
	clearLatency time.Duration
	inputLabel   string

	translations atomic.Int64
}

// Option configures a Site.
type Option func(*Site)

// WithDebounce sets how long the page waits after the last keystroke.
// Default: 300ms.
func WithDebounce(d time.Duration) Option {
	return func(s *Site) { s.debounce = d }
}

// WithStreamStep sets the delay between rendered runes. Zero renders the
// whole translation at once. Default: 20ms.
func WithStreamStep(d time.Duration) Option {
	return func(s *Site) { s.streamStep = d }
}

// WithClearLatency sets how long stale output stays after the input is
// cleared. Default: 200ms.
func WithClearLatency(d time.Duration) Option {
	return func(s *Site) { s.clearLatency = d }
}

// WithInputLabel sets the input's accessible name.
func WithInputLabel(label string) Option {
	return func(s *Site) { s.inputLabel = label }
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(s *Site) { s.logger = l }
}

// DefaultInputLabel is the accessible name of the real target's input.
const DefaultInputLabel = "Input Your Singlish Text Here."

// OutputClass is the class list of the output div, matching the default
// output CSS selector.
const OutputClass = "w-full h-80 p-3 rounded-lg ring-1 ring-slate-300 whitespace-pre-wrap"

// New creates a site rendering translate.
func New(translate Translator, opts ...Option) *Site {
	s := &Site{
		translate:    translate,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		debounce:     300 * time.Millisecond,
		streamStep:   20 * time.Millisecond,
		clearLatency: 200 * time.Millisecond,
		inputLabel:   DefaultInputLabel,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/api/translate", s.handleTranslate).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Translations returns how many translate requests were served.
func (s *Site) Translations() int64 {
	return s.translations.Load()
}

// TranslateRequest is the body of POST /api/translate.
type TranslateRequest struct {
	Text string `json:"text"`
}

// TranslateResponse is the reply of POST /api/translate.
type TranslateResponse struct {
	Output string `json:"output"`
}

func (s *Site) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	s.translations.Add(1)

	out := ""
	if text := strings.TrimSpace(req.Text); text != "" {
		out = s.translate(text)
	}
	s.logger.Debug("translate", "input", req.Text, "output", out)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TranslateResponse{Output: out})
}

func (s *Site) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type pageData struct {
	InputLabel     string
	OutputClass    string
	DebounceMS     int64
	StreamStepMS   int64
	ClearLatencyMS int64
}

func (s *Site) handlePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(w, pageData{
		InputLabel:     s.inputLabel,
		OutputClass:    OutputClass,
		DebounceMS:     s.debounce.Milliseconds(),
		StreamStepMS:   s.streamStep.Milliseconds(),
		ClearLatencyMS: s.clearLatency.Milliseconds(),
	})
	if err != nil {
		s.logger.Error("render page", "error", err)
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Singlish to Sinhala</title>
</head>
<body>
<main>
  <h1>Singlish to Sinhala</h1>
  <textarea id="src" rows="6" aria-label="{{.InputLabel}}" placeholder="{{.InputLabel}}"></textarea>
  <div role="textbox" aria-readonly="true" class="{{.OutputClass}}">composing</div>
  <div id="out" class="{{.OutputClass}}"></div>
</main>
<script>
(function () {
  var src = document.getElementById("src");
  var out = document.getElementById("out");
  var debounce = {{.DebounceMS}}, step = {{.StreamStepMS}}, clearLatency = {{.ClearLatencyMS}};
  var timer = null, streamer = null, generation = 0;

  function stop() {
    clearTimeout(timer);
    clearInterval(streamer);
    streamer = null;
  }

  function render(text, gen) {
    if (gen !== generation) return;
    var runes = Array.from(text);
    if (step <= 0 || runes.length === 0) {
      out.textContent = text;
      return;
    }
    var n = 0;
    out.textContent = "";
    streamer = setInterval(function () {
      if (gen !== generation || n >= runes.length) {
        clearInterval(streamer);
        return;
      }
      n++;
      out.textContent = runes.slice(0, n).join("");
    }, step);
  }

  src.addEventListener("input", function () {
    stop();
    var gen = ++generation;
    var text = src.value;
    if (text.trim() === "") {
      timer = setTimeout(function () {
        if (gen === generation) out.textContent = "";
      }, clearLatency);
      return;
    }
    timer = setTimeout(function () {
      fetch("/api/translate", {
        method: "POST",
        headers: {"Content-Type": "application/json"},
        body: JSON.stringify({text: text})
      })
        .then(function (r) { return r.json(); })
        .then(function (body) { render(body.output || "", gen); });
    }, debounce);
  });
})();
</script>
</body>
</html>
`))
