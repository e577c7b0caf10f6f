// Package event delivers notifications about tree and document changes.
//
// Events are published on hierarchical, dot-separated topics such as
// "tree.child.insert.before". Subscribers register a topic pattern in which
// "*" matches exactly one segment and "**" matches any number of segments.
//
// Delivery is synchronous: Publish runs every matching handler in the
// publisher's goroutine, in priority order, before it returns. Structural
// tree notifications depend on this, because a "before" handler must observe
// the tree before the mutation and an "after" handler after it. A panicking
// handler is recovered and counted, and never interrupts delivery to the
// remaining handlers.
package event
