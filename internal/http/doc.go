// Package http provides HTTP handlers and middleware for the calendar API.
//
// Every route lives under /api:
//   - POST /api/auth/google: exchanges a Google ID token ({"token"}) for a
//     session token. Response: {"token","expiresAt","user"}; the token is also
//     set as the `session_token` cookie.
//   - GET /api/auth/me, POST /api/auth/logout: current user and session revocation.
//   - GET /api/events, POST /api/events, PUT /api/events/{id}, DELETE /api/events/{id}:
//     owner-scoped event management exchanging the `eventDTO` payload defined in
//     event_handler.go.
//   - POST /api/events/upload, GET /api/events/export.ics, GET /api/events/agenda,
//     GET /api/events/notifications: bulk import, iCalendar export, server-side
//     day placement and reminders.
//   - GET /api/search: text, date and group search over the caller's events.
//   - GET /api/logs, GET /api/users, PATCH /api/users/{id}: administrator only.
//   - GET /api/health: unauthenticated storage check.
//
// Failures use the envelope {"errorCode","message","errors"} written by the
// responder in responder.go.
package http
