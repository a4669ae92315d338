package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/analytics"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

// mapError converts service errors to HTTP errors. Unrecognized errors fall
// through to echo's default handler as a 500.
func mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrPatternNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "pattern not found")
	case errors.Is(err, analytics.ErrSpikeNotRecorded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, analytics.ErrNoIndex):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, analytics.ErrEmptyPatternID),
		errors.Is(err, pattern.ErrEmptyPatternID),
		errors.Is(err, pattern.ErrEmptyDomain),
		errors.Is(err, pattern.ErrEmptyEmbedding),
		errors.Is(err, pattern.ErrInvalidConfidence),
		errors.Is(err, pattern.ErrEmptyTrajectory):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

// floatQuery parses an optional float query parameter, returning def when
// the parameter is absent.
func floatQuery(c echo.Context, name string, def float64) (float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" parameter")
	}
	return v, nil
}

// intQuery parses an optional integer query parameter, returning def when
// the parameter is absent.
func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" parameter")
	}
	return v, nil
}

// handleEdges returns the domain's similarity edges at the requested
// threshold. A missing threshold selects the configured default.
func (s *Server) handleEdges(c echo.Context) error {
	domain := c.Param("domain")
	threshold, err := floatQuery(c, "threshold", 0)
	if err != nil {
		return err
	}

	edges, err := s.svc.BuildPatternEdges(c.Request().Context(), domain, threshold)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, EdgesResponse{
		Domain: domain,
		Edges:  edges,
		Count:  len(edges),
	})
}

// handleMincut returns the global minimum cut of the domain's similarity
// graph.
func (s *Server) handleMincut(c echo.Context) error {
	domain := c.Param("domain")
	threshold, err := floatQuery(c, "threshold", 0)
	if err != nil {
		return err
	}

	result, err := s.svc.ComputeMincut(c.Request().Context(), domain, threshold)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// handlePartition recomputes and persists the domain's cluster assignment.
func (s *Server) handlePartition(c echo.Context) error {
	domain := c.Param("domain")

	var opts analytics.PartitionOptions
	if err := c.Bind(&opts); err != nil {
		s.logger.Warn("invalid partition request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	clusters, err := s.svc.PartitionPatterns(c.Request().Context(), domain, opts)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, PartitionResponse{
		Domain:   domain,
		Clusters: clusters,
		Count:    len(clusters),
	})
}

// handleNovelty scores one pattern's novelty against the domain's clusters.
func (s *Server) handleNovelty(c echo.Context) error {
	domain := c.Param("domain")
	id := c.Param("id")
	threshold, err := floatQuery(c, "threshold", 0)
	if err != nil {
		return err
	}

	score, err := s.svc.DetectNovelPattern(c.Request().Context(), id, domain, threshold)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, score)
}

// handlePageRank returns the domain's patterns ranked by structural
// importance over the usage-link graph.
func (s *Server) handlePageRank(c echo.Context) error {
	domain := c.Param("domain")

	entries, err := s.svc.ComputePatternPageRank(c.Request().Context(), domain)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, PageRankResponse{
		Domain:  domain,
		Entries: entries,
	})
}

// handleRebuildLinks rebuilds the domain's usage links from its recorded
// trajectories.
func (s *Server) handleRebuildLinks(c echo.Context) error {
	domain := c.Param("domain")

	n, err := s.svc.BuildLinksFromTrajectories(c.Request().Context(), domain)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, RebuildLinksResponse{
		Domain:     domain,
		LinksBuilt: n,
	})
}

// handleSpike stimulates one pattern and propagates the spike one hop.
func (s *Server) handleSpike(c echo.Context) error {
	id := c.Param("id")

	events, err := s.svc.FireSpike(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, SpikeResponse{
		Events: events,
		Count:  len(events),
	})
}

// handleNetworkState reports the domain's aggregate spiking activity.
func (s *Server) handleNetworkState(c echo.Context) error {
	domain := c.Param("domain")

	state, err := s.svc.GetNetworkState(c.Request().Context(), domain)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, state)
}

// handleNetworkReset zeroes every potential in the domain.
func (s *Server) handleNetworkReset(c echo.Context) error {
	domain := c.Param("domain")

	n, err := s.svc.ResetNetwork(c.Request().Context(), domain)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, ResetResponse{
		Domain:     domain,
		ResetCount: n,
	})
}

// handleAnomalies scores the domain's patterns for unusual spiking. Query
// parameters override the server's configured window and threshold.
func (s *Server) handleAnomalies(c echo.Context) error {
	domain := c.Param("domain")
	window, err := intQuery(c, "window_seconds", s.config.AnomalyWindowSeconds)
	if err != nil {
		return err
	}
	zThreshold, err := floatQuery(c, "z_threshold", s.config.AnomalyZThreshold)
	if err != nil {
		return err
	}

	scores, err := s.svc.DetectAnomalies(c.Request().Context(), domain, window, zThreshold)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, AnomaliesResponse{
		Domain:        domain,
		WindowSeconds: window,
		ZThreshold:    zThreshold,
		Scores:        scores,
	})
}

// handleSearch returns the k nearest indexed patterns to the query
// embedding.
func (s *Server) handleSearch(c echo.Context) error {
	domain := c.Param("domain")

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Embedding) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "embedding field is required")
	}

	results, err := s.svc.SearchSimilar(c.Request().Context(), domain, req.Embedding, req.K)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Domain:  domain,
		Results: results,
		Count:   len(results),
	})
}

// handleCreatePattern stores a new pattern and returns its novelty score.
func (s *Server) handleCreatePattern(c echo.Context) error {
	var req CreatePatternRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid pattern request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, novelty, err := s.svc.RecordPattern(c.Request().Context(), req.Domain, req.Embedding, req.Confidence)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusCreated, CreatePatternResponse{
		Pattern: p,
		Novelty: novelty,
	})
}

// handleGetPattern returns one pattern by ID.
func (s *Server) handleGetPattern(c echo.Context) error {
	id := c.Param("id")

	p, err := s.svc.GetPattern(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, p)
}

// handleCreateTrajectory records a successful tool-use sequence.
func (s *Server) handleCreateTrajectory(c echo.Context) error {
	var req CreateTrajectoryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid trajectory request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	t, err := s.svc.RecordTrajectory(c.Request().Context(), req.Domain, req.PatternIDs)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusCreated, t)
}
