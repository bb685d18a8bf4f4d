// Package httputil holds the JSON response helpers shared by the dashboard,
// cron and manual-sync handlers so every endpoint answers with the same
// envelope shapes.
package httputil
