// Package domain holds the core entities, repository interfaces, and pure
// logic of the service: board reordering, list query helpers, estimation
// decks, and vote statistics. It has no dependencies on transport or storage.
package domain
