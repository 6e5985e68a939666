// Package imagegen wraps the OpenAI-compatible images API used to produce
// cover art.
//
// A generation is two requests: a POST to <base_url>/images/generations that
// returns a short-lived URL, followed by a GET of that URL. Both requests
// honour the caller's context. Failures are returned as classified
// services errors (auth, rate_limited, content_policy, network, unknown) so
// the orchestrator can decide whether a retry is worthwhile without
// inspecting error text.
package imagegen
