// Package numbering generates land registry file numbers.
//
// A file number is "{category}-{year}-{serial}". The Layout lists registry
// blocks in generation order; each block walks its categories, then years
// ascending, then serials 1..NumbersPerYear.
//
// # Registries
//
// A category containing the conversion marker ("CON") always belongs to the
// conversion registry. Every other category is placed by the year window that
// contains its year, or by the last window's registry when none does.
//
// # Numbering
//
// Every record gets a run-wide GlobalSequence (1..N, contiguous), a group and
// batch number of ((GlobalSequence-1)/GroupSize)+1, and a RegistryBatchNumber
// computed the same way from a counter kept per assigned registry.
//
// Counters live in an explicit State, so concurrent generators never share them.
package numbering
