// Package http provides HTTP handlers and middleware for the Secret Santa API.
//
// Caller identity is taken from the X-User-ID header set by the upstream
// gateway and resolved to a registered user before any protected handler
// runs. Unknown or missing identities receive 401.
//
// The router exposes the following endpoints:
//   - GET /healthz: liveness plus a storage ping. No identity required.
//   - POST /users: registers an account. Body: {"username","name","password"}.
//     No identity required.
//   - GET /users/{username}, PATCH /users/{username}: profile lookup and
//     owner-only profile update. Body: {"name","password"}, both optional.
//   - GET /events, POST /events: events the caller attends, newest first, and
//     event creation. Body: {"title","description","location","attender_ids"}.
//   - GET /events/{id}, PUT /events/{id}, DELETE /events/{id}: event retrieval
//     for attenders, and moderator-only update and delete. A PUT body carrying
//     "attender_ids" replaces the attender set, which is only allowed while the
//     event is OPEN.
//   - PATCH /events/{id}: moderator-only partial update. Omitted fields keep
//     their stored values; "attender_ids" follows the PUT rule.
//   - POST /events/{id}/attenders: moderator adds {"username"} to an OPEN event.
//   - POST /events/{id}/start: moderator starts the event and draws the gifts.
//     Response: {"event", "gift_count"}.
//   - GET /events/{id}/gift: an attender of a STARTED event learns their receiver.
//
// Errors are returned as {"error_code","message","errors"}. Request/response
// DTOs live alongside their respective handlers so tests and documentation
// share the same ground truth.
package http
