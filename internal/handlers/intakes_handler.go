package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/intake"
	"github.com/swingbridge/intakeflow/internal/mindbody"
	"github.com/swingbridge/intakeflow/internal/validation"
)

// IntakeRunner runs the front half of the provisioning workflow.
type IntakeRunner interface {
	Run(ctx context.Context, req intake.Request) (*intake.Result, error)
}

// ClientCreator is the direct MindBody client-creation surface.
type ClientCreator interface {
	EnsureRequiredClientFields(ctx context.Context, attrs map[string]string) error
	AddClient(ctx context.Context, firstName, lastName, email string, extras map[string]string) (*mindbody.TargetClient, error)
}

// AttemptSearcher serves the operator-facing attempt listing.
type AttemptSearcher interface {
	Search(ctx context.Context, params attempts.SearchParams) ([]attempts.Attempt, error)
}

// HandlerConfig groups dependencies for the intake API.
type HandlerConfig struct {
	Workflow IntakeRunner
	MindBody ClientCreator
	Attempts AttemptSearcher
}

// RegisterIntakeRoutes registers the intake API routes.
func RegisterIntakeRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/v1/intakes", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.IntakeRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		correlationID := c.GetHeader("X-Request-Id")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Header("X-Request-Id", correlationID)

		res, err := cfg.Workflow.Run(ctx, intake.Request{
			Club:  req.Club,
			Email: req.Email,
			Name:  req.Name,
		})
		if err != nil {
			// internal failures stay server-side; callers get the coarse
			// status only
			log.Printf("[api] intake failed club=%s email=%s corr=%s: %v", req.Club, req.Email, correlationID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": intake.OutcomeError})
			return
		}

		body := gin.H{"status": res.Outcome}
		if res.Member != nil {
			body["member"] = res.Member
		}
		c.JSON(res.HTTPStatus, body)
	})

	r.POST("/v1/mindbody/clients", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateClientRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		attrs := map[string]string{
			"FirstName": req.FirstName,
			"LastName":  req.LastName,
			"Email":     req.Email,
		}
		for k, v := range req.Extras {
			attrs[k] = v
		}
		if err := cfg.MindBody.EnsureRequiredClientFields(ctx, attrs); err != nil {
			writeMindBodyError(c, err, http.StatusBadRequest)
			return
		}

		client, err := cfg.MindBody.AddClient(ctx, req.FirstName, req.LastName, req.Email, req.Extras)
		if err != nil {
			writeMindBodyError(c, err, http.StatusBadGateway)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"client_id": client.ID, "email": client.Email})
	})

	r.GET("/v1/attempts", func(c *gin.Context) {
		ctx := c.Request.Context()

		var limit int32
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 32)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
				return
			}
			limit = int32(n)
		}

		results, err := cfg.Attempts.Search(ctx, attempts.SearchParams{
			Status: c.Query("status"),
			Club:   c.Query("club"),
			Query:  c.Query("q"),
			Limit:  limit,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_search", "detail": err.Error()})
			return
		}

		out := make([]gin.H, 0, len(results))
		for _, a := range results {
			out = append(out, gin.H{
				"club":          a.Club,
				"email":         a.Email,
				"status":        a.Status,
				"error_message": a.ErrorMessage,
				"retry_count":   a.RetryCount,
				"evidence":      a.Evidence,
				"updated_at":    a.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"attempts": out})
	})
}

// writeMindBodyError maps the MindBody error taxonomy onto HTTP: credential
// failures are 401, definitive API rejections use apiStatus, anything else
// is a 502.
func writeMindBodyError(c *gin.Context, err error, apiStatus int) {
	var authErr *mindbody.AuthError
	var apiErr *mindbody.APIError
	switch {
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "mindbody_auth_failed", "detail": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(apiStatus, gin.H{"error": "mindbody_rejected", "detail": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "mindbody_unreachable", "detail": err.Error()})
	}
}
