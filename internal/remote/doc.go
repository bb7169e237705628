// Package remote talks to the upstream content API.
//
// Client is the real collaborator: it fetches today's record from
// GET {base}/content/today and uploads queued interactions to
// POST {base}/interactions/batch. Simulated stands in when no base URL is
// configured. Prober polls GET {base}/health and reports reachability
// transitions on a channel that the lifecycle manager consumes.
//
// Requests carry the current trace context, set Accept/User-Agent headers
// and return wrapped errors. The client never retries; retry policy belongs
// to the sync queue.
package remote
