// Package models defines the core domain types shared across the service:
// groups, ledger transactions, role snapshots, users, and the derived
// balance sheet.
//
// Design notes:
//
//   - Amounts use decimal.Decimal with at most two fractional digits so the
//     balance fold can work in exact integer minor units.
//   - Role fields (payer, receiver, lender, borrower, participants) hold
//     RoleSnapshot values frozen at transaction creation; they are never
//     re-derived from the live member list, so historical records stay
//     stable when a member edits their profile.
//   - Relationships are expressed as ID strings, not pointers, to avoid
//     circular references between documents.
package models
