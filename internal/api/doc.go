// Package api exposes the REST surface of the vault: transaction
// submission and confirmation, settings and owner management, recovery,
// automated payments, chain information and the event archive.
package api
