// Package events provides typed fan-out feeds for core notifications.
//
// Each event category gets its own Feed. Subscribers receive on buffered
// channels; a publish never blocks, and a subscriber that falls behind loses
// its oldest events rather than stalling the publisher or its peers.
package events
