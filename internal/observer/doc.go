// Package observer manages UI client sessions and pushes status snapshots
// to their callback URLs.
package observer
