package handler

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// ExportHandler streams CSV exports.  Rows go straight from the
// database cursor to the response writer, so exports of any size run in
// constant memory.
type ExportHandler struct {
	Cfg      config.Config
	TreeRepo *repository.TreeRepo
	Measures *repository.MeasurementRepo
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(cfg config.Config, trees *repository.TreeRepo, measures *repository.MeasurementRepo) *ExportHandler {
	if trees == nil || measures == nil {
		panic("nil dependency passed to NewExportHandler")
	}
	return &ExportHandler{Cfg: cfg, TreeRepo: trees, Measures: measures}
}

func startCSV(c echo.Context, filename string) *csv.Writer {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	h.Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)
	return csv.NewWriter(c.Response())
}

func floatField(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Trees handles GET /v1/export/trees.csv.  The same query parameters as
// the tree list apply.
func (h *ExportHandler) Trees(c echo.Context) error {
	f, err := listFilter(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid filter parameter")
	}
	w := startCSV(c, "trees.csv")
	if err := w.Write([]string{"id", "tree_code", "forest_id", "species", "planted_at", "died_at", "is_alive", "latitude", "longitude"}); err != nil {
		return err
	}
	err = h.TreeRepo.Export(c.Request().Context(), f, func(t model.Tree) error {
		died := ""
		if t.DiedAt != nil {
			died = t.DiedAt.UTC().Format("2006-01-02")
		}
		return w.Write([]string{
			strconv.FormatUint(t.ID, 10),
			t.TreeCode,
			strconv.FormatUint(t.ForestID, 10),
			t.Species,
			t.PlantedAt.UTC().Format("2006-01-02"),
			died,
			strconv.FormatBool(t.IsAlive),
			strconv.FormatFloat(t.Latitude, 'f', -1, 64),
			strconv.FormatFloat(t.Longitude, 'f', -1, 64),
		})
	})
	if err != nil {
		// Headers are already sent; the truncated body is all we can signal.
		c.Logger().Errorf("trees export aborted: %v", err)
		return nil
	}
	w.Flush()
	return w.Error()
}

// Measurements handles GET /v1/export/measurements.csv with optional
// forestId narrowing.
func (h *ExportHandler) Measurements(c echo.Context) error {
	var forestID uint64
	if v := c.QueryParam("forestId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid forestId")
		}
		forestID = id
	}
	w := startCSV(c, "measurements.csv")
	if err := w.Write([]string{"id", "tree_id", "tree_code", "height_m", "diameter_cm", "health", "co2_kg", "notes", "measured_at"}); err != nil {
		return err
	}
	err := h.Measures.Export(c.Request().Context(), forestID, func(row repository.ExportRow) error {
		m := row.Measurement
		health := ""
		if m.Health != nil {
			health = *m.Health
		}
		return w.Write([]string{
			strconv.FormatUint(m.ID, 10),
			strconv.FormatUint(m.TreeID, 10),
			row.TreeCode,
			floatField(m.HeightM),
			floatField(m.DiameterCM),
			health,
			floatField(m.CO2Kg),
			m.Notes,
			m.MeasuredAt.UTC().Format("2006-01-02 15:04:05"),
		})
	})
	if err != nil {
		c.Logger().Errorf("measurements export aborted: %v", err)
		return nil
	}
	w.Flush()
	return w.Error()
}
