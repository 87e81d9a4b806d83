// Package models defines the core domain models for the group ledger.
//
// # Models
//
//   - Cycle: one accounting period of a group, open or closed
//   - Entry: a single signed amount recorded inside a cycle
//   - Participant: a chat user seen in a group, resolvable by display name
//   - OperatorGrant: write privilege on a group's ledger for a non-admin
//   - CarriedBalance: the unsettled net balance left by the last closed cycle
//
// # Design Principles
//
//  1. Every entity is scoped by a group ID; nothing crosses groups.
//  2. Amounts are whole units stored as int64. There is no currency field.
//  3. Relationships use IDs, never pointers.
//  4. Carry-over entries are ordinary rows whose note starts with
//     CarryOverPrefix; helpers on Entry classify them.
package models
