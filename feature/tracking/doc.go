// Package tracking allocates tracking ids of the form TRK-XXXXXXXX-XXXXX, where
// X is an upper-case letter or a digit.
//
// Ids are drawn from a non-cryptographic random source, so uniqueness is a
// matter of policy. The Guarantee level selects it:
//
//   - probabilistic: every draw is accepted as is.
//   - run: the allocator remembers every id it handed out and redraws on a
//     repeat, so ids are unique within the process.
//   - persisted: like run, and Resolve additionally checks a batch against
//     the ids already stored (through a Checker) and redraws collisions.
package tracking
