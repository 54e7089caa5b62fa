// Package fed implements federated moderation actions: resolving a target
// user from a triggering message, fanning a ban/unban command out to every
// registered federation chat, classifying the replies, and rendering the
// final report.
package fed
