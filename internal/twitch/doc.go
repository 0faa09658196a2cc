// Package twitch talks to the Helix API: app token management, channel
// lookups, and EventSub subscription lifecycle with webhook transport.
package twitch
