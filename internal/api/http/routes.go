package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/yongjie-lim/carpark-availability/internal/cache"
	"github.com/yongjie-lim/carpark-availability/internal/carpark"
)

var validate = validator.New()

// lookupParams holds the path parameter for the lookup endpoint.
type lookupParams struct {
	Number string `validate:"required,max=10"`
}

// lookupResponse is the wire shape for a successful lookup. AgeSeconds
// is set whenever the record carries live data; NoLiveData marks known
// carparks the availability feed said nothing about.
type lookupResponse struct {
	Carpark    carpark.MergedRecord `json:"carpark"`
	Stale      bool                 `json:"stale"`
	NoLiveData bool                 `json:"noLiveData,omitempty"`
	AgeSeconds *int64               `json:"ageSeconds,omitempty"`
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, c *cache.Cache) {
	v1 := app.Group("/api/v1")

	v1.Get("/carparks/:number", func(ctx *fiber.Ctx) error {
		params := lookupParams{Number: ctx.Params("number")}
		if err := validate.Struct(params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result := c.Lookup(params.Number)
		switch result.Status {
		case cache.StatusNoSnapshot:
			return fiber.NewError(fiber.StatusServiceUnavailable, "no snapshot loaded; trigger a reload first")
		case cache.StatusNotFound:
			return fiber.NewError(fiber.StatusNotFound, "no such carpark")
		}

		resp := lookupResponse{
			Carpark:    result.Record,
			Stale:      result.Status == cache.StatusStale,
			NoLiveData: !result.Record.HasLiveData(),
		}
		if result.Record.HasLiveData() {
			age := int64(result.Age / time.Second)
			resp.AgeSeconds = &age
		}
		return ctx.JSON(resp)
	})

	v1.Post("/reload", func(ctx *fiber.Ctx) error {
		if err := c.Reload(ctx.UserContext()); err != nil {
			switch {
			case errors.Is(err, carpark.ErrSourceUnavailable):
				return fiber.NewError(fiber.StatusBadGateway, "carpark source unavailable; previous snapshot retained")
			case errors.Is(err, carpark.ErrMalformedResponse):
				return fiber.NewError(fiber.StatusBadGateway, "carpark source returned malformed data; previous snapshot retained")
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "reload failed")
			}
		}

		carparks, fetchedAt, _ := c.SnapshotInfo()
		return ctx.JSON(fiber.Map{
			"reloaded":  true,
			"carparks":  carparks,
			"fetchedAt": fetchedAt,
		})
	})
}
