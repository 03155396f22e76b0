package search

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/tally/pkg/observability"
)

// Lookups are read-only point reads into the entity stores used to enrich
// result rows. Implementations return ErrNotFound for missing records.
type Lookups interface {
	GetContact(ctx context.Context, id string) (*Contact, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	GetUserName(ctx context.Context, id string) (string, error)
}

// enrich fills the joined display fields of r. A missing or failing lookup
// leaves its field empty.
func (e *Engine) enrich(ctx context.Context, r *Result) {
	if e.lookups == nil {
		return
	}

	switch r.EntityType {
	case EntityTypeTask:
		task, err := e.lookups.GetTask(ctx, r.EntityID)
		if !e.lookupOK(r, "task", err) {
			return
		}
		if task.ProjectID != "" {
			project, err := e.lookups.GetProject(ctx, task.ProjectID)
			if e.lookupOK(r, "project", err) {
				r.ProjectName = project.Name
			}
		}
		if task.AssigneeID != "" {
			name, err := e.lookups.GetUserName(ctx, task.AssigneeID)
			if e.lookupOK(r, "user", err) {
				r.AssigneeName = name
			}
		}

	case EntityTypeProject:
		project, err := e.lookups.GetProject(ctx, r.EntityID)
		if !e.lookupOK(r, "project", err) {
			return
		}
		if project.CreatedBy != "" {
			name, err := e.lookups.GetUserName(ctx, project.CreatedBy)
			if e.lookupOK(r, "user", err) {
				r.CreatorName = name
			}
		}

	case EntityTypeContact:
		contact, err := e.lookups.GetContact(ctx, r.EntityID)
		if e.lookupOK(r, "contact", err) {
			r.Company = contact.Company
		}
	}
}

func (e *Engine) lookupOK(r *Result, kind string, err error) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrNotFound) {
		e.logger.WithFields(map[string]interface{}{
			"entity_type": string(r.EntityType),
			"entity_id":   r.EntityID,
			"lookup":      kind,
		}).WithError(err).Warn("enrichment lookup failed")
	}
	return false
}

// CachedLookups memoizes project and user reads, which repeat across the
// rows of a page. Task and contact reads pass through.
type CachedLookups struct {
	Lookups

	projects *lru.LRU[string, *Project]
	users    *lru.LRU[string, string]
	metrics  *observability.Metrics
}

// NewCachedLookups wraps next with size-bounded caches expiring after ttl
func NewCachedLookups(next Lookups, size int, ttl time.Duration, metrics *observability.Metrics) *CachedLookups {
	if size <= 0 {
		size = 1000
	}
	return &CachedLookups{
		Lookups:  next,
		projects: lru.NewLRU[string, *Project](size, nil, ttl),
		users:    lru.NewLRU[string, string](size, nil, ttl),
		metrics:  metrics,
	}
}

func (c *CachedLookups) GetProject(ctx context.Context, id string) (*Project, error) {
	if p, ok := c.projects.Get(id); ok {
		c.metrics.ObserveEnrichmentLookup("project", true)
		cp := *p
		return &cp, nil
	}
	c.metrics.ObserveEnrichmentLookup("project", false)

	p, err := c.Lookups.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *p
	c.projects.Add(id, &cp)
	return p, nil
}

func (c *CachedLookups) GetUserName(ctx context.Context, id string) (string, error) {
	if name, ok := c.users.Get(id); ok {
		c.metrics.ObserveEnrichmentLookup("user", true)
		return name, nil
	}
	c.metrics.ObserveEnrichmentLookup("user", false)

	name, err := c.Lookups.GetUserName(ctx, id)
	if err != nil {
		return "", err
	}
	c.users.Add(id, name)
	return name, nil
}

// Purge drops every cached value
func (c *CachedLookups) Purge() {
	c.projects.Purge()
	c.users.Purge()
}
