package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rustcare/core/internal/authz"
	"github.com/rustcare/core/internal/platform/config"
	"github.com/rustcare/core/internal/platform/logging"
	"github.com/rustcare/core/internal/secctx"
	"github.com/rustcare/core/pkg/nethttp"
)

func newRequestID() string {
	return uuid.NewString()
}

// buildFiberApp wires the ambient middleware (correlation id, CORS,
// request logging, error mapping) ahead of the Security Context Pipeline
// adapter, mirroring the teacher's router construction
// (components/*/internal/adapters/http/in/routes.go).
func buildFiberApp(pipeline *secctx.Pipeline, logger logging.Logger, cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return nethttp.WithError(c, err)
		},
	})

	app.Use(nethttp.WithCorrelationID())

	corsCfg := nethttp.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = joinOrigins(cfg.AllowedOrigins)
	}
	app.Use(nethttp.WithCORS(corsCfg))

	app.Use(nethttp.WithRequestLogger(logger))

	adapter := nethttp.NewPipelineAdapter(pipeline)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	patients := app.Group("/tenants/:tenant_id/patients", adapter.Handler())
	patients.Get("/:patient_id", getPatientRecord(pipeline))

	return app
}

// getPatientRecord is a demonstration handler showing how a domain route
// consumes the Outcome the pipeline adapter assembled: it reads through
// the RLS-scoped Tx (so a patient id outside app.allowed_resources simply
// returns no row and the handler answers 404, exactly as for a record that
// does not exist), then runs the one PHI field worth masking through
// FieldMask (step 9) before returning it.
func getPatientRecord(pipeline *secctx.Pipeline) fiber.Handler {
	return func(c *fiber.Ctx) error {
		outcome, ok := nethttp.OutcomeFromFiber(c)
		if !ok {
			return fiber.ErrInternalServerError
		}

		patientID := c.Params("patient_id")

		row := outcome.Tx.QueryRow(c.Context(), "SELECT ssn FROM patients WHERE id = $1", patientID)

		var ssn string
		if err := row.Scan(&ssn); err != nil {
			return c.SendStatus(fiber.StatusNotFound)
		}

		object := authz.ObjectRef{Namespace: "patient_record", Type: "patient_record", ID: patientID}

		result, err := pipeline.FieldMask(c.Context(), outcome.RequestCtx, "ssn", patientID, ssn, object)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"patient_id": patientID,
			"ssn":        result.Value,
		})
	}
}

func joinOrigins(origins []string) string {
	out := ""
	for i, o := range origins {
		if i > 0 {
			out += ","
		}
		out += o
	}

	return out
}
