package http

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-query-service/internal/observability"
)

//go:embed templates/welcome.html
var welcomeHTML string

var welcomeTemplate = template.Must(template.New("welcome").Parse(welcomeHTML))

type routeDoc struct {
	Path        string
	Description string
}

var routeDocs = []routeDoc{
	{"/api/v1.0/precipitation", "precipitation by date for the past year"},
	{"/api/v1.0/stations", "station ids and names"},
	{"/api/v1.0/tobs", "temperature observations of the most active station for the past year"},
	{"/api/v1.0/<start>", "min, avg and max temperature from start onwards"},
	{"/api/v1.0/<start>/<end>", "min, avg and max temperature between start and end, inclusive"},
}

// Welcome handles GET /. Lists the data routes.
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	data := struct {
		Routes      []routeDoc
		WindowStart string
	}{routeDocs, h.climate.WindowStart()}
	if err := welcomeTemplate.Execute(&buf, data); err != nil {
		observability.LoggerFromContext(r.Context()).Error("render welcome page", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
