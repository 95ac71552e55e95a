// Package memory implements every goIdentity storage port in process memory.
//
// All ports returned by one [Store] share a single mutex, so cross-port operations
// such as [Store.ResetPassword] are atomic. It suits tests and single-process
// deployments; state is lost on restart.
package memory
