package metrics

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

const landingPage = `<html>
<head><title>%[1]s</title></head>
<body>
<h1>%[1]s</h1>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`

// NewRouter serves the sink on /metrics and a small landing page on /.
func NewRouter(title string, sink *Sink) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", sink.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, landingPage, title)
	}).Methods(http.MethodGet)
	return r
}
