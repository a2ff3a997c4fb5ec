package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/catalog"
	"github.com/MarcoPoloResearchLab/agentstore/internal/engagement"
	"github.com/MarcoPoloResearchLab/agentstore/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type agentListPayload struct {
	Agents []catalog.Agent `json:"agents"`
	Tags   []string        `json:"tags"`
}

type agentDetailPayload struct {
	Agent  catalog.Agent       `json:"agent"`
	Deploy catalog.DeployLinks `json:"deploy"`
}

type votePayload struct {
	Count          int64 `json:"count"`
	ViewerHasVoted bool  `json:"viewer_has_voted"`
}

type commentPayload struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

type engagementPayload struct {
	ItemID   string           `json:"item_id"`
	Viewer   string           `json:"viewer,omitempty"`
	Votes    votePayload      `json:"votes"`
	Comments []commentPayload `json:"comments"`
	Synced   bool             `json:"synced"`
}

func (h *httpHandler) handleListAgents(c *gin.Context) {
	tags := make([]string, 0)
	for _, raw := range c.QueryArray("tag") {
		for _, tag := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
	}
	c.JSON(http.StatusOK, agentListPayload{
		Agents: catalog.Filter(tags, c.Query("q")),
		Tags:   catalog.AllTags(),
	})
}

func (h *httpHandler) handleGetAgent(c *gin.Context) {
	agent, ok := catalog.Find(c.Param("slug"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent_not_found"})
		return
	}
	c.JSON(http.StatusOK, agentDetailPayload{Agent: agent, Deploy: agent.Deploy()})
}

// handleAgentEngagement hydrates the agent's engagement state for the optional
// session viewer. Read failures degrade to zero state with synced=false.
func (h *httpHandler) handleAgentEngagement(c *gin.Context) {
	agent, ok := catalog.Find(c.Param("slug"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent_not_found"})
		return
	}
	itemID, err := engagement.NewItemID(agent.Slug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid_item"})
		return
	}
	store, err := engagement.NewStore(engagement.StoreConfig{Records: h.records, ItemID: itemID, Logger: h.logger})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "engagement_unavailable"})
		return
	}

	viewer := viewerFromContext(c)
	votes, comments, err := store.Hydrate(c.Request.Context(), viewer)
	if err != nil {
		if observer := h.observer(); observer != nil {
			observer.RecordEngagementEvent(engagement.EventHydrationFailed)
		}
	}

	payload := engagementPayload{
		ItemID:   itemID.String(),
		Votes:    votePayload{Count: votes.Count, ViewerHasVoted: votes.ViewerHasVoted},
		Comments: make([]commentPayload, 0, len(comments.Comments)),
		Synced:   err == nil,
	}
	if viewer.Present() {
		payload.Viewer = viewer.ID()
	}
	for _, comment := range comments.Comments {
		payload.Comments = append(payload.Comments, commentPayload{
			ID:         comment.ID,
			AuthorID:   comment.AuthorID,
			AuthorName: comment.AuthorName,
			Body:       comment.Body,
			CreatedAt:  comment.CreatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, payload)
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return metrics.Handler(gatherer)
}
