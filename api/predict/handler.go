package predict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/freightmatch/core/prediction"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/kilianp07/freightmatch/core/training"
	"github.com/kilianp07/freightmatch/infra/logger"
)

const maxBodyBytes = 1 << 16

type handler struct {
	predictor Predictor
	retrainer Retrainer
	health    Pinger
	log       logger.Logger
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *handler) predict(c *gin.Context) {
	req, err := bindRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "malformed request", Detail: err.Error()})
		return
	}
	quote, err := h.predictor.Predict(c.Request.Context(), req)
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *handler) retrain(c *gin.Context) {
	n, err := h.retrainer.Retrain(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"samples": n})
	case errors.Is(err, training.ErrNoData):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, source.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "database unavailable"})
	default:
		h.log.Errorf("retrain: %v", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "retrain failed"})
	}
}

func (h *handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// errorResponse maps engine errors to a status code and a body that does not
// leak upstream details.
func errorResponse(err error) (int, errorBody) {
	var v *prediction.ValidationError
	if errors.As(err, &v) {
		return http.StatusBadRequest, errorBody{Error: v.Reason.Error(), Detail: v.Detail}
	}
	var up *prediction.UpstreamError
	if errors.As(err, &up) {
		if up.Service == prediction.ServiceGeocoder {
			return http.StatusBadGateway, errorBody{Error: "geocoder unavailable"}
		}
		return http.StatusServiceUnavailable, errorBody{Error: up.Service + " unavailable"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal error"}
}

// bindRequest reads the quote parameters from the JSON body of a POST or
// from the query string. JSON values may be strings or numbers.
func bindRequest(c *gin.Context) (prediction.Request, error) {
	if c.Request.Method == http.MethodPost && c.Request.Body != nil {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			return prediction.Request{}, err
		}
		if len(bytes.TrimSpace(body)) > 0 {
			return decodeJSON(body)
		}
	}
	return prediction.Request{
		From:        c.Query("from"),
		To:          c.Query("to"),
		Weight:      c.Query("weight"),
		Volume:      c.Query("volume"),
		ActualPrice: c.Query("actual_price"),
	}, nil
}

func decodeJSON(body []byte) (prediction.Request, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return prediction.Request{}, fmt.Errorf("malformed JSON body: %w", err)
	}
	return prediction.Request{
		From:        field(raw, "from"),
		To:          field(raw, "to"),
		Weight:      field(raw, "weight"),
		Volume:      field(raw, "volume"),
		ActualPrice: field(raw, "actual_price"),
	}, nil
}

func field(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		// Non-scalar values fail number parsing downstream.
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
