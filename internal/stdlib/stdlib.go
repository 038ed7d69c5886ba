package stdlib

import "github.com/seanpringle/rela/internal/vm"

// Install wires up every built-in a VM gets regardless of host
// registrations: the core scope's language-level built-ins plus the
// domain-stack modules (db, net) SPEC_FULL.md's DOMAIN STACK table wires
// to the teacher's and pack's SQL-driver and websocket dependencies.
func Install(v *vm.VM) {
	installCore(v)
	InstallDB(v)
	InstallNet(v)
}
