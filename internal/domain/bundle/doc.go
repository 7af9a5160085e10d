// Package bundle contains the core domain types of the launcher.
//
// A Descriptor is the canonical, resolved metadata of one client distribution:
// libraries, natives, main artifact, assets, content packs and argument
// templates. Descriptors are built once by a source adapter or by the resolver
// merge and are never mutated afterwards; every holder shares the same pointer.
//
// The package also defines the metadata Query, the launch Profile, process
// records, size reports and the error taxonomy shared by every component.
package bundle
