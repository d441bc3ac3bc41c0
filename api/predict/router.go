// Package predict exposes the quote engine over HTTP.
//
// Routes:
//
//	GET|POST /api/predict  quote a shipment (query string or JSON body)
//	POST     /api/retrain  rebuild the price model from history
//	GET      /healthz      liveness and data source reachability
package predict

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/prediction"
	"github.com/kilianp07/freightmatch/infra/logger"
)

// Predictor answers quote requests.
type Predictor interface {
	Predict(ctx context.Context, req prediction.Request) (model.Quote, error)
}

// Retrainer rebuilds the price model and reports the sample count.
type Retrainer interface {
	Retrain(ctx context.Context) (int, error)
}

// Pinger checks that a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the handlers' collaborators. Retrainer, Health and Registerer
// are optional; a nil Registerer disables request metrics.
type Deps struct {
	Predictor  Predictor
	Retrainer  Retrainer
	Health     Pinger
	Registerer prometheus.Registerer
	Limits     RateLimit
	Log        logger.Logger
}

// NewRouter builds the gin engine serving the API.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = logger.New("api")
	}
	r := gin.New()
	r.Use(recovery(log))
	if d.Registerer != nil {
		r.Use(newRequestMetrics(d.Registerer).middleware())
	}
	r.Use(requestLog(log))

	h := &handler{predictor: d.Predictor, retrainer: d.Retrainer, health: d.Health, log: log}
	r.GET("/healthz", h.healthz)

	api := r.Group("/api")
	if d.Limits.Enabled() {
		api.Use(newLimiter(d.Limits).middleware())
	}
	api.GET("/predict", h.predict)
	api.POST("/predict", h.predict)
	if d.Retrainer != nil {
		api.POST("/retrain", h.retrain)
	}
	return r
}
