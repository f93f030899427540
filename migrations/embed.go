// Package migrations embeds the default provisioning scripts, one directory
// per schema.
package migrations

import "embed"

//go:embed */*.sql
var FS embed.FS
