package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rcliao/polymath/internal/merge"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/remote"
	"github.com/rcliao/polymath/internal/store"
)

func (o *Orchestrator) steps() []step {
	steps := []step{
		{name: "projects", run: func(ctx context.Context) StepResult { return o.syncCollection(ctx, model.KindProject) }},
		{name: "memories", run: func(ctx context.Context) StepResult { return o.syncCollection(ctx, model.KindMemory) }},
		{name: "lists", run: func(ctx context.Context) StepResult { return o.syncCollection(ctx, model.KindList) }},
		{name: "connections", run: func(ctx context.Context) StepResult { return o.syncCollection(ctx, model.KindConnection) }},
		{name: "articles", run: o.syncArticles},
	}
	if len(o.dashboards) > 0 {
		steps = append(steps, step{name: "dashboard", run: o.syncDashboards})
	}
	if o.captures != nil {
		steps = append(steps, step{name: "captures", run: o.flushCaptures})
	}
	return steps
}

// syncCollection pulls one collection, merges it over the cache and deletes
// records the remote no longer lists.
func (o *Orchestrator) syncCollection(ctx context.Context, kind model.Kind) StepResult {
	var res StepResult
	items, err := o.api.List(ctx, kind)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	existing, err := o.store.ListResources(ctx, kind)
	if err != nil {
		res.Error = fmt.Sprintf("read cached %s: %v", kind, err)
		return res
	}
	cached := make(map[string]model.CachedResource, len(existing))
	for _, r := range existing {
		cached[r.ID] = r
	}

	now := time.Now()
	records := make([]model.CachedResource, 0, len(items))
	keep := make([]string, 0, len(items))
	for _, item := range items {
		id, err := remote.ItemID(item)
		if err != nil {
			o.logger.Warn("skip remote item", "kind", kind, "error", err)
			continue
		}
		keep = append(keep, id)
		base, ok := cached[id]
		if !ok {
			base = model.CachedResource{ID: id, Kind: kind}
		}
		rec, err := mergeRecord(base, item, now)
		if err != nil {
			o.logger.Warn("skip remote item", "kind", kind, "id", id, "error", err)
			continue
		}
		records = append(records, rec)
	}

	if err := o.store.BulkPutResources(ctx, records); err != nil {
		res.Error = fmt.Sprintf("store %s: %v", kind, err)
		return res
	}
	res.Fetched = len(records)

	pruned, err := o.store.PruneResources(ctx, kind, keep)
	if err != nil {
		o.logger.Warn("prune deleted records", "kind", kind, "error", err)
	}
	res.Pruned = len(pruned)
	if kind == model.KindArticle {
		for _, id := range pruned {
			o.dropArticleData(ctx, id)
		}
	}

	if err := o.store.SetSyncTime(ctx, string(kind), now); err != nil {
		o.logger.Warn("record sync time", "kind", kind, "error", err)
	}
	return res
}

// syncArticles refreshes the reading list, then caches every processed
// article that is not yet fully cached, one at a time.
func (o *Orchestrator) syncArticles(ctx context.Context) StepResult {
	res := o.syncCollection(ctx, model.KindArticle)
	if res.Error != "" || o.cacher == nil {
		return res
	}

	processed, err := o.store.QueryResources(ctx, model.KindArticle, store.IndexStatus, model.StatusProcessed)
	if err != nil {
		o.logger.Warn("find processed articles", "error", err)
		return res
	}
	for _, a := range processed {
		if a.FullyCached {
			continue
		}
		rec, err := o.fetchArticle(ctx, a)
		if err != nil {
			o.logger.Warn("fetch article detail", "id", a.ID, "error", err)
			res.Partial++
			continue
		}
		cr, err := o.cacher.Download(ctx, rec)
		if err != nil {
			o.logger.Warn("cache article", "id", a.ID, "error", err)
			res.Partial++
			continue
		}
		if cr.FullyCached {
			res.Cached++
		} else {
			res.Partial++
		}
	}
	return res
}

// fetchArticle loads the article body and highlights and merges them over
// the cached record.
func (o *Orchestrator) fetchArticle(ctx context.Context, cached model.CachedResource) (model.CachedResource, error) {
	detail, err := o.api.Article(ctx, cached.ID)
	if err != nil {
		return cached, err
	}
	payload := detail.Article
	if len(detail.Highlights) > 0 {
		payload, err = withField(payload, "highlights", detail.Highlights)
		if err != nil {
			return cached, err
		}
	}
	return mergeRecord(cached, payload, time.Now())
}

func (o *Orchestrator) dropArticleData(ctx context.Context, id string) {
	if _, err := o.store.DeleteMediaForResource(ctx, id); err != nil {
		o.logger.Warn("drop media for deleted article", "id", id, "error", err)
	}
	if err := o.store.DeleteProgress(ctx, id); err != nil {
		o.logger.Warn("drop progress for deleted article", "id", id, "error", err)
	}
}

func (o *Orchestrator) syncDashboards(ctx context.Context) StepResult {
	var res StepResult
	var failed []string
	for _, name := range o.dashboards {
		payload, err := o.api.Dashboard(ctx, name)
		if err == nil {
			err = o.store.PutSnapshot(ctx, model.Snapshot{Name: name, Payload: payload})
		}
		if err != nil {
			o.logger.Warn("refresh dashboard snapshot", "name", name, "error", err)
			failed = append(failed, name)
			continue
		}
		res.Fetched++
	}
	if len(failed) == len(o.dashboards) {
		res.Error = fmt.Sprintf("all dashboard snapshots failed: %v", failed)
	}
	return res
}

func (o *Orchestrator) flushCaptures(ctx context.Context) StepResult {
	var res StepResult
	fr, err := o.captures.Flush(ctx)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Fetched = fr.Submitted
	res.Partial = fr.Failed
	return res
}

// mergeRecord merges a remote payload over a cached record. A stored content
// body marks the record offline available; a changed body invalidates media
// completeness.
func mergeRecord(base model.CachedResource, remotePayload json.RawMessage, now time.Time) (model.CachedResource, error) {
	payload, err := merge.Payloads(base.Payload, remotePayload)
	if err != nil {
		return base, err
	}
	rec := base
	rec.Payload = payload
	if status := model.PayloadString(payload, "status"); status != "" {
		rec.Status = status
	}
	if rec.Content() != base.Content() {
		rec.FullyCached = false
	}
	rec.OfflineAvailable = rec.Content() != ""
	rec.LastSynced = now
	return rec, nil
}

func withField(payload json.RawMessage, field string, value any) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode article: %w", err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	fields[field] = raw
	return json.Marshal(fields)
}
