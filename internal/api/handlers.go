package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"intel_fetcher/internal/domain"
	"intel_fetcher/internal/service"
)

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

type runResponse struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Due       *bool  `json:"due,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) cronUpdate(w http.ResponseWriter, r *http.Request) {
	req := service.RunRequest{Trigger: domain.TriggerManual}

	if raw := r.URL.Query().Get("topicId"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req.TopicID = &id
	}

	stats, err := s.ingestor.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{Success: true, Processed: stats.Processed})
}

func (s *Server) cronCheck(w http.ResponseWriter, r *http.Request) {
	decision, stats, err := s.poller.Tick(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := runResponse{Success: true, Due: &decision.Due, Reason: decision.Reason}
	if stats != nil {
		resp.Processed = stats.Processed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.catalog.ListTopics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if topics == nil {
		topics = []domain.Topic{}
	}
	writeJSON(w, http.StatusOK, topics)
}

type sourceRequest struct {
	TopicID          int64             `json:"topic_id"`
	URL              string            `json:"url"`
	Name             string            `json:"name"`
	Type             domain.SourceType `json:"type"`
	ReliabilityScore *int              `json:"reliability_score"`
}

func (in sourceRequest) toNewSource() service.NewSource {
	return service.NewSource{
		URL:              in.URL,
		Name:             in.Name,
		Type:             in.Type,
		ReliabilityScore: in.ReliabilityScore,
	}
}

type createTopicRequest struct {
	Keyword string          `json:"keyword"`
	Sources []sourceRequest `json:"sources"`
}

type createTopicResponse struct {
	Topic   *domain.Topic   `json:"topic"`
	Sources []domain.Source `json:"sources"`
}

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var in createTopicRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}

	sources := make([]service.NewSource, 0, len(in.Sources))
	for _, src := range in.Sources {
		sources = append(sources, src.toNewSource())
	}

	topic, created, err := s.catalog.CreateTopic(r.Context(), in.Keyword, sources)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createTopicResponse{Topic: topic, Sources: created})
}

func (s *Server) updateTopic(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var in struct {
		IsActive *bool `json:"is_active"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if in.IsActive == nil {
		s.writeError(w, fmt.Errorf("%w: is_active is required", errBadRequest))
		return
	}

	if err := s.catalog.SetTopicActive(r.Context(), id, *in.IsActive); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) deleteTopic(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.catalog.DeleteTopic(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type createSourceResponse struct {
	Source         *domain.Source `json:"source"`
	DiscoveredFeed string         `json:"discovered_feed,omitempty"`
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var in sourceRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if in.TopicID <= 0 {
		s.writeError(w, fmt.Errorf("%w: topic_id is required", errBadRequest))
		return
	}

	src, feed, err := s.catalog.AddSource(r.Context(), in.TopicID, in.toNewSource())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSourceResponse{Source: src, DiscoveredFeed: feed})
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.catalog.DeleteSource(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ArticleID int64 `json:"article_id"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if in.ArticleID <= 0 {
		s.writeError(w, fmt.Errorf("%w: article_id is required", errBadRequest))
		return
	}

	if err := s.catalog.MarkRead(r.Context(), in.ArticleID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) markUnread(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Query().Get("articleId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.catalog.MarkUnread(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
