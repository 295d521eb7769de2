package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/buffer"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SiteCatalog resolves radar site ids.
type SiteCatalog interface {
	Get(id string) (domain.RadarSite, error)
	All() []domain.RadarSite
}

// SnapshotSource serves buffered snapshots.
type SnapshotSource interface {
	GetSnapshots(ctx context.Context, siteID string) ([]domain.ReflectivitySnapshot, error)
	Sites() []buffer.SiteState
}

// API serves the /api/v1 routes.
type API struct {
	sites        SiteCatalog
	snapshots    SnapshotSource
	defaultSite  string
	thresholdDBZ float64
	logger       *slog.Logger
}

// NewAPI creates the snapshot API. Colors are computed against thresholdDBZ;
// defaultSite is served by /api/v1/snapshots.
func NewAPI(sites SiteCatalog, snapshots SnapshotSource, defaultSite string, thresholdDBZ float64, logger *slog.Logger) *API {
	return &API{
		sites:        sites,
		snapshots:    snapshots,
		defaultSite:  defaultSite,
		thresholdDBZ: thresholdDBZ,
		logger:       logger,
	}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/sites", a.handleSites)
	mux.HandleFunc("GET /api/v1/sites/{id}/snapshots", a.handleSiteSnapshots)
	mux.HandleFunc("GET /api/v1/snapshots", a.handleDefaultSnapshots)
	mux.HandleFunc("GET /api/v1/buffer", a.handleBuffer)
}

// siteParam is the validated {id} path parameter.
type siteParam struct {
	ID string `validate:"required,len=4,alphanum,uppercase"`
}

type snapshotsResponse struct {
	Site      domain.RadarSite `json:"site"`
	Snapshots []snapshotDTO    `json:"snapshots"`
}

type snapshotDTO struct {
	Timestamp time.Time  `json:"timestamp"`
	SiteID    string     `json:"site_id"`
	Count     int        `json:"count"`
	Points    []pointDTO `json:"points"`
}

type pointDTO struct {
	domain.Point
	Color *domain.RGBA `json:"color,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) handleSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sites.All())
}

func (a *API) handleBuffer(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sites": a.snapshots.Sites()})
}

func (a *API) handleDefaultSnapshots(w http.ResponseWriter, r *http.Request) {
	a.serveSnapshots(w, r, a.defaultSite)
}

func (a *API) handleSiteSnapshots(w http.ResponseWriter, r *http.Request) {
	param := siteParam{ID: strings.ToUpper(r.PathValue("id"))}
	if err := validate.Struct(param); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid site id " + r.PathValue("id")})
		return
	}
	a.serveSnapshots(w, r, param.ID)
}

func (a *API) serveSnapshots(w http.ResponseWriter, r *http.Request, siteID string) {
	site, err := a.sites.Get(siteID)
	if errors.Is(err, domain.ErrUnknownSite) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	snapshots, err := a.snapshots.GetSnapshots(r.Context(), site.ID)
	if err != nil {
		a.logger.Error("get snapshots failed", "site_id", site.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "radar archive unavailable: " + err.Error()})
		return
	}

	withColors := r.URL.Query().Get("colors") == "true"
	resp := snapshotsResponse{Site: site, Snapshots: make([]snapshotDTO, 0, len(snapshots))}
	for _, snap := range snapshots {
		resp.Snapshots = append(resp.Snapshots, a.toDTO(snap, withColors))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) toDTO(snap domain.ReflectivitySnapshot, withColors bool) snapshotDTO {
	dto := snapshotDTO{
		Timestamp: snap.Timestamp,
		SiteID:    snap.SiteID,
		Count:     snap.Len(),
		Points:    make([]pointDTO, snap.Len()),
	}
	for i := range dto.Points {
		p := snap.Point(i)
		dto.Points[i].Point = p
		if withColors {
			c := domain.Colorize(float64(p.DBZ), a.thresholdDBZ)
			dto.Points[i].Color = &c
		}
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
