// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: MIT

package swagger

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openapiYAML []byte

type Handler struct {
	spec map[string]interface{}
}

func NewHandler() (*Handler, error) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal(openapiYAML, &spec); err != nil {
		return nil, err
	}

	return &Handler{spec: spec}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/openapi.json", h.ServeOpenAPISpec)
}

func GetOpenAPISpec() ([]byte, error) {
	return openapiYAML, nil
}

func (h *Handler) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Shallow copy so the embedded servers list stays untouched
	spec := make(map[string]interface{}, len(h.spec))
	for k, v := range h.spec {
		spec[k] = v
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	servers := []map[string]interface{}{
		{
			"url":         scheme + "://" + r.Host,
			"description": "Current server",
		},
	}
	if existingServers, ok := spec["servers"].([]interface{}); ok {
		for _, s := range existingServers {
			if server, ok := s.(map[string]interface{}); ok {
				servers = append(servers, server)
			}
		}
	}
	spec["servers"] = servers

	if err := json.NewEncoder(w).Encode(spec); err != nil {
		log.Error().Err(err).Msg("Failed to encode OpenAPI spec")
	}
}
