// Package electionservice wires the election registry, ballot ledger and
// tally engine of the membership portal.
//
// An election moves draft -> upcoming -> ongoing -> ended, or to cancelled
// from any non-terminal state. Members submit one complete ballot per
// election; results are recomputed from the ballot ledger on every read.
package electionservice
