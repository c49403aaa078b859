package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ingest/internal/ledger"
	"ingest/internal/logger"
	"ingest/internal/notification"
	"ingest/internal/transform"
	"ingest/pkg/errors"
)

// StateReporter is implemented by the circuit-breaker wrappers.
type StateReporter interface {
	State() string
}

type Handler struct {
	Registry *transform.Registry
	Ledger   ledger.Ledger
	Breakers map[string]StateReporter
	Logger   logger.Logger
}

func NewHandler(registry *transform.Registry, l ledger.Ledger, breakers map[string]StateReporter, log logger.Logger) *Handler {
	return &Handler{
		Registry: registry,
		Ledger:   l,
		Breakers: breakers,
		Logger:   log,
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/transformers", h.ListTransformers)
		v1.GET("/breakers", h.ListBreakers)

		l := v1.Group("/ledger")
		{
			l.GET("/entry", h.GetLedgerEntry)
			l.GET("/count", h.CountLedger)
		}
	}
}

type TransformersResponse struct {
	Transformers []string `json:"transformers"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// ListTransformers godoc
// @Summary      List registered transformers
// @Description  Dispatch keys of every registered transformer, sorted
// @Tags         transformers
// @Produce      json
// @Success      200  {object}  TransformersResponse
// @Router       /transformers [get]
func (h *Handler) ListTransformers(c *gin.Context) {
	c.JSON(http.StatusOK, TransformersResponse{Transformers: h.Registry.Keys()})
}

// ListBreakers godoc
// @Summary      Circuit breaker states
// @Tags         status
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /breakers [get]
func (h *Handler) ListBreakers(c *gin.Context) {
	states := make(map[string]string, len(h.Breakers))
	for name, b := range h.Breakers {
		states[name] = b.State()
	}
	c.JSON(http.StatusOK, states)
}

// GetLedgerEntry godoc
// @Summary      Look up a ledger entry
// @Description  Returns the entry recorded for a source object, if it was processed
// @Tags         ledger
// @Produce      json
// @Param        bucket  query     string  true  "Source bucket"
// @Param        key     query     string  true  "Source object key"
// @Success      200     {object}  ledger.Entry
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      404     {object}  errors.ErrorResponse
// @Failure      502     {object}  errors.ErrorResponse
// @Router       /ledger/entry [get]
func (h *Handler) GetLedgerEntry(c *gin.Context) {
	id := notification.ObjectIdentity{
		Bucket: strings.TrimSpace(c.Query("bucket")),
		Key:    strings.TrimSpace(c.Query("key")),
	}
	if id.Bucket == "" || id.Key == "" {
		h.HandleError(c, errors.ErrValidation.WithMessage("bucket and key query parameters are required"))
		return
	}

	entry, err := h.Ledger.Lookup(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if entry == nil {
		h.HandleError(c, errors.ErrNotFound.WithMessage("object has not been processed").
			WithDetail("bucket", id.Bucket).
			WithDetail("key", id.Key))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// CountLedger godoc
// @Summary      Count ledger entries
// @Tags         ledger
// @Produce      json
// @Success      200  {object}  CountResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /ledger/count [get]
func (h *Handler) CountLedger(c *gin.Context) {
	counter, ok := h.Ledger.(ledger.Counter)
	if !ok {
		h.HandleError(c, errors.ErrNotFound.WithMessage("ledger backend does not support counting"))
		return
	}
	n, err := counter.Count(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}
