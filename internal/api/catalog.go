package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/provider"
	"github.com/hivecouncil/hivecouncil/internal/session"
)

// modelListTimeout bounds the local model lookup behind /api/archetypes.
const modelListTimeout = 3 * time.Second

const recommendationLimit = 4

type modelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type archetypeView struct {
	council.Archetype
	InstalledRecommendations []string `json:"installed_recommendations,omitempty"`
}

type providerView struct {
	provider.Info
	Configured bool `json:"configured"`
}

type templateView struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions"`
}

// installedModels asks the local provider for its models. Failures yield nil.
func (s *Server) installedModels(ctx context.Context) []string {
	p, ok := s.providers.Resolve(provider.Ollama)
	if !ok {
		return nil
	}
	lister, ok := provider.Underlying(p).(modelLister)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, modelListTimeout)
	defer cancel()

	models, err := lister.ListModels(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("list local models")
		return nil
	}
	return models
}

func (s *Server) handleArchetypes(c *gin.Context) {
	installed := s.installedModels(c.Request.Context())

	all := council.Archetypes()
	out := make([]archetypeView, 0, len(all))
	for _, a := range all {
		v := archetypeView{Archetype: a}
		if len(installed) > 0 {
			v.InstalledRecommendations = council.Recommend(a.ID, installed, provider.ModelSuitability, recommendationLimit)
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"archetypes": out, "installed_models": installed})
}

func (s *Server) handleTemplates(c *gin.Context) {
	ids := council.TemplateIDs()
	templates := make([]templateView, 0, len(ids))
	for _, id := range ids {
		instructions, _ := council.MergeInstructions(id)
		templates = append(templates, templateView{ID: id, Instructions: instructions})
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "presets": council.Presets()})
}

func (s *Server) handleProviders(c *gin.Context) {
	names := provider.CatalogNames()
	out := make([]providerView, 0, len(names))
	for _, name := range names {
		info, ok := provider.Catalog(name)
		if !ok {
			continue
		}
		_, configured := s.providers.Resolve(name)
		out = append(out, providerView{Info: info, Configured: configured})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (s *Server) handleListCouncilTemplates(c *gin.Context) {
	templates, err := s.store.ListTemplates(c.Request.Context())
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if templates == nil {
		templates = []session.CouncilTemplate{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) handleSaveCouncilTemplate(c *gin.Context) {
	var t session.CouncilTemplate
	if err := c.ShouldBindJSON(&t); err != nil {
		abortError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.checkCouncilTemplate(&t); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.store.SaveTemplate(c.Request.Context(), &t); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// checkCouncilTemplate fills defaults and validates the roster the same way
// a session config is validated.
func (s *Server) checkCouncilTemplate(t *session.CouncilTemplate) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("template name is required")
	}
	cfg := council.Config{
		Prompt:     t.Name,
		Members:    t.Members,
		Iterations: t.Iterations,
		Template:   t.Template,
		Preset:     t.Preset,
	}
	cfg.ApplyDefaults(s.defaults)
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.Members = cfg.Members
	t.Iterations = cfg.Iterations
	t.Template = cfg.Template
	t.Preset = cfg.Preset
	return nil
}

func (s *Server) handleDeleteCouncilTemplate(c *gin.Context) {
	id := c.Param("id")
	deleted, err := s.store.DeleteTemplate(c.Request.Context(), id)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		abortError(c, http.StatusNotFound, errors.New("council template not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}
