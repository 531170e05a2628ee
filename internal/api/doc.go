// TVGuide - Electronic Program Guide Store and Merge Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tvguide

/*
Package api serves the guide over HTTP with a chi router.

Read endpoints:

	GET  /api/v1/health
	GET  /api/v1/channels
	GET  /api/v1/channels/{uid}/now
	GET  /api/v1/channels/{uid}/events?from=RFC3339&to=RFC3339
	GET  /api/v1/channels/{uid}/events/{broadcastID}

Control endpoints:

	POST   /api/v1/channels/{uid}/update
	PUT    /api/v1/playing            {"channel_uid": "..."}
	DELETE /api/v1/playing
	GET    /api/v1/timers
	PUT    /api/v1/timers             epg.Timer
	DELETE /api/v1/timers/{id}
	GET    /api/v1/recordings
	PUT    /api/v1/recordings         epg.Recording
	DELETE /api/v1/recordings/{id}

Prometheus metrics are served at /metrics.

Every JSON response uses the same envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
	{"status": "error", "data": null, "metadata": {...}, "error": {"code": "...", "message": "..."}}

Timer and recording writes update the cross-reference index and re-resolve
the affected channels before responding.
*/
package api
