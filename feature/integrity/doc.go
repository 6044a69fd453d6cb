// Package integrity checks that the environment matches what the tools expect.
//
// # Checks Provided
//
//   - Schema: the identifier and result tables carry every column of their
//     gorm models, with compatible types where the model declares one.
//   - Archive: the bucket that receives run reports exists (created on fix).
package integrity
