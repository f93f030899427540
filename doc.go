// Package schemapool is a multi-schema PostgreSQL access layer.
//
// A single bounded connection pool serves two isolated schemas, USER_SCHEMA
// and ADDRESS_SCHEMA. Before any request is served, Open runs the startup
// protocol:
//
//  1. open the pool, eagerly establishing the initial connections
//  2. provision (or verify) every configured schema, strictly in order
//  3. validate a pooled connection
//  4. wait for the readiness gate to report Ready
//
// Any failure along the way is fatal and returned with its cause, for
// example a *ScriptError naming the schema and script that failed.
//
// # Basic Usage
//
//	cfg, err := schemapool.LoadConfig("config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc, err := schemapool.Open(ctx, cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	users, err := svc.Repository.ListUsers(ctx)
//
// # Readiness
//
// After startup the gate keeps tracking pool health. When no connection can
// be validated any more it turns Degraded and reads fail with ErrDegraded;
// the next successful validation, from traffic or from the periodic probe,
// makes it Ready again. Bootstrap is never re-run within a process.
//
// # Re-provisioning
//
// Provisioning scripts are not idempotent, and running them against an
// instance that is already provisioned fails with ErrScriptExecutionFailed.
// DropSchemas returns an instance to its fresh state.
package schemapool
