// Package notifier sends content and owner notices through the chat adapter.
//
// All sends share one token-bucket limiter so a burst of firings stays under the
// platform's flood limits. Content delivery is tried once; the caller keeps the
// item pending on failure. Notices are retried with backoff.
package notifier
