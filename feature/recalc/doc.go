// Package recalc re-derives global sequence, group, batch and registry batch
// numbers for rows already in the identifier table.
//
// # Phases
//
//  1. PrepareColumns adds the nullable work columns.
//
//  2. Recalculate ranks each registry's rows by id with ROW_NUMBER and fills
//     the work columns window by window, one transaction per window:
//
//     new_global_sequence       = rank + offset
//     new_group_number          = ((rank + offset - 1) / group) + 1
//     new_batch_number          = new_group_number
//     new_registry_batch_number = ((rank - 1) / group) + 1
//
//     offset grows by the registry's count after each registry.
//
//  3. Verify samples boundary rows and column ranges for sign-off.
//
//  4. Apply copies the work columns onto the permanent ones in one statement.
//
//  5. DropColumns removes the work columns.
//
// # Failures
//
// A failing window is rolled back and halts its registry; earlier windows stay
// committed. There is no automatic retry: rerun Recalculate to resume, since
// every window is recomputed from ranks and is safe to repeat. Apply refuses a
// result with a halted registry.
package recalc
