// Switchboard routes live phone-call turns for multi-tenant voice agents and
// compiles each tenant's routing rules into cached artifacts.
//
// Usage:
//
//	# Start the HTTP API, policy watcher and background jobs
//	switchboard run --config config.yaml
//
//	# Compile a tenant policy offline and print its checksum and conflicts
//	switchboard compile --tenant acme --file policies/acme.yaml
//
//	# Check policy files for structural problems
//	switchboard lint --dir policies/
//
//	# Roll a tenant back to a previously published artifact
//	switchboard activate --tenant acme --key policy:artifact:acme:v3:1f2e...
//
//	# Show version information
//	switchboard version
package main

import "os"

func main() {
	os.Exit(Execute())
}
