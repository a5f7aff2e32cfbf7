// Package notify announces finished builds to a socket.io server so that
// development servers can reload the bundles they serve.
package notify
